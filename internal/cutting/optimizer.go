// Package cutting implements the 2D guillotine cutting optimizer: beam
// search over placements, best-fit-decreasing ordering, kerf accounting,
// and virtual full-sheet escalation when real inventory runs out.
package cutting

import (
	"log/slog"
	"sort"
	"strings"

	"retlister/internal/models"
)

const (
	// BeamWidth bounds the number of candidate partial solutions carried
	// between cuts.
	BeamWidth = 5

	// FullSheetWidthMM and FullSheetHeightMM are the dimensions of a
	// virtual sheet synthesized when real inventory cannot absorb the
	// cut list.
	FullSheetWidthMM  = 2800
	FullSheetHeightMM = 3000

	// MaxVirtualSheets caps the escalation loop.
	MaxVirtualSheets = 10

	// minUsefulRemainderMM is the hard floor below which a free
	// rectangle is discarded rather than reported, regardless of the
	// caller's min_remainder_* salvage threshold.
	minUsefulRemainderMM = 30

	// maxOptionsPerCut bounds how many placement options are kept per
	// candidate when forking the beam at each cut.
	maxOptionsPerCut = 3
)

// Optimizer runs the beam-search guillotine cutting algorithm.
type Optimizer struct {
	logger *slog.Logger
}

// New creates a cutting Optimizer.
func New(logger *slog.Logger) *Optimizer {
	return &Optimizer{logger: logger}
}

// expandedCut is one physical piece to place, tagged with the index of the
// CutRequest it came from.
type expandedCut struct {
	requestIndex int
	width        int
	height       int
	thickness    int
	material     string
}

// candidate is one partial solution carried in the beam.
type candidate struct {
	plankOrder []int64 // order planks were opened, for "already opened" preference
	planks     map[int64]*plankState
	unplaced   []expandedCut
}

type plankState struct {
	plank    models.Plank
	free     []models.FreeRect
	cuts     []models.PlacedCut
	usedArea int64
}

func cloneCandidate(c *candidate) *candidate {
	nc := &candidate{
		plankOrder: append([]int64(nil), c.plankOrder...),
		planks:     make(map[int64]*plankState, len(c.planks)),
		unplaced:   append([]expandedCut(nil), c.unplaced...),
	}
	for id, ps := range c.planks {
		nc.planks[id] = &plankState{
			plank:    ps.plank,
			free:     append([]models.FreeRect(nil), ps.free...),
			cuts:     append([]models.PlacedCut(nil), ps.cuts...),
			usedArea: ps.usedArea,
		}
	}
	return nc
}

// efficiency returns used/total area across opened planks in this candidate.
func (c *candidate) efficiency() float64 {
	var used, total int64
	for _, ps := range c.planks {
		used += ps.usedArea
		total += ps.plank.Area()
	}
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total)
}

// ValidateRequest checks every cut request in req against its bounds,
// aborting the whole request on the first failure (validation errors abort,
// they don't produce unplaced cuts).
func ValidateRequest(req models.OptimizeCutsRequest) error {
	if len(req.Cuts) == 0 {
		return models.NewValidationError("cuts must not be empty")
	}
	for _, c := range req.Cuts {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the cutting optimizer over the given request and plank pool.
// The pool does not need to be pre-filtered by material or thickness — Run
// groups internally and skips planks too small to cut.
func (o *Optimizer) Run(req models.OptimizeCutsRequest, inventory []models.Plank) models.OptimizeCutsResponse {
	req.Defaults()

	cuts := expand(req.Cuts)
	sortDescending(cuts)

	var planks []models.Plank
	for _, p := range inventory {
		if p.EligibleForCutting() {
			planks = append(planks, p)
		}
	}

	var result *candidate
	virtualSheets := 0
	for {
		result = o.runOnce(cuts, planks, req.KerfWidthMM)
		if len(result.unplaced) == 0 || virtualSheets >= MaxVirtualSheets {
			break
		}
		// Escalate: append one virtual full sheet per distinct (material,
		// thickness) group still carrying unplaced cuts, then retry from
		// scratch on the augmented inventory.
		groups := distinctGroups(result.unplaced)
		progressed := false
		for _, g := range groups {
			if virtualSheets >= MaxVirtualSheets {
				break
			}
			virtualSheets++
			planks = append(planks, models.Plank{
				ID:          int64(-virtualSheets),
				WidthMM:     FullSheetWidthMM,
				HeightMM:    FullSheetHeightMM,
				ThicknessMM: g.thickness,
				Material:    g.material,
			})
			progressed = true
		}
		if !progressed {
			break
		}
	}

	return o.buildResponse(result, req)
}

type group struct {
	material  string
	thickness int
}

func distinctGroups(cuts []expandedCut) []group {
	seen := map[group]bool{}
	var out []group
	for _, c := range cuts {
		g := group{material: strings.ToLower(c.material), thickness: c.thickness}
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}

// expand turns quantity-bearing CutRequests into individual pieces.
func expand(reqs []models.CutRequest) []expandedCut {
	var out []expandedCut
	for i, r := range reqs {
		for n := 0; n < r.Quantity; n++ {
			out = append(out, expandedCut{
				requestIndex: i,
				width:        r.WidthMM,
				height:       r.HeightMM,
				thickness:    r.ThicknessMM,
				material:     r.Material,
			})
		}
	}
	return out
}

// sortDescending orders cuts by area descending, breaking ties by longest
// side descending (Best-Fit Decreasing).
func sortDescending(cuts []expandedCut) {
	sort.SliceStable(cuts, func(i, j int) bool {
		ai := int64(cuts[i].width) * int64(cuts[i].height)
		aj := int64(cuts[j].width) * int64(cuts[j].height)
		if ai != aj {
			return ai > aj
		}
		li := longestSide(cuts[i])
		lj := longestSide(cuts[j])
		return li > lj
	})
}

func longestSide(c expandedCut) int {
	if c.width > c.height {
		return c.width
	}
	return c.height
}

// runOnce performs one full beam-search pass over the given ordered cuts
// and plank inventory, with no virtual-sheet escalation.
func (o *Optimizer) runOnce(cuts []expandedCut, planks []models.Plank, kerf int) *candidate {
	byGroup := map[group][]models.Plank{}
	for _, p := range planks {
		g := group{material: strings.ToLower(p.Material), thickness: p.ThicknessMM}
		byGroup[g] = append(byGroup[g], p)
	}

	beam := []*candidate{{planks: map[int64]*plankState{}}}

	for _, cut := range cuts {
		g := group{material: strings.ToLower(cut.material), thickness: cut.thickness}
		groupPlanks := byGroup[g]

		var next []*candidate
		for _, c := range beam {
			options := findPlacements(c, groupPlanks, cut, kerf)
			if len(options) == 0 {
				// No placement possible in this candidate at all: carry it
				// forward with the cut marked unplaced.
				nc := cloneCandidate(c)
				nc.unplaced = append(nc.unplaced, cut)
				next = append(next, nc)
				continue
			}
			for _, opt := range options {
				nc := cloneCandidate(c)
				applyPlacement(nc, opt, cut, kerf)
				next = append(next, nc)
			}
		}

		next = rankAndTruncate(next)
		beam = next
	}

	return bestOf(beam)
}

func bestOf(beam []*candidate) *candidate {
	best := beam[0]
	for _, c := range beam[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best
}

func better(a, b *candidate) bool {
	if len(a.unplaced) != len(b.unplaced) {
		return len(a.unplaced) < len(b.unplaced)
	}
	return a.efficiency() > b.efficiency()
}

func rankAndTruncate(cands []*candidate) []*candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return better(cands[i], cands[j])
	})
	if len(cands) > BeamWidth {
		cands = cands[:BeamWidth]
	}
	return cands
}

// placementOption is a feasible place to put one cut.
type placementOption struct {
	plankID   int64
	plank     models.Plank // only set when the plank is not yet open in the candidate
	freeIndex int
	rotated   bool
	w, h      int
}

// findPlacements scans the candidate's open planks plus the group's unopened
// planks for feasible placements of cut, keeping up to maxOptionsPerCut
// ranked by (a) already-opened planks first, then (b) smallest plank area
// that still fits.
func findPlacements(c *candidate, groupPlanks []models.Plank, cut expandedCut, kerf int) []placementOption {
	var options []placementOption

	tryPlank := func(plankID int64, plank models.Plank, free []models.FreeRect) {
		for idx, r := range free {
			for _, rotated := range []bool{false, true} {
				w, h := cut.width, cut.height
				if rotated {
					w, h = h, w
				}
				if w <= r.Width && h <= r.Height {
					options = append(options, placementOption{
						plankID: plankID, plank: plank, freeIndex: idx,
						rotated: rotated, w: w, h: h,
					})
				}
			}
		}
	}

	// Walk open planks in the order they were opened so option enumeration
	// stays deterministic across runs.
	for _, id := range c.plankOrder {
		ps := c.planks[id]
		tryPlank(id, ps.plank, ps.free)
	}
	for _, p := range groupPlanks {
		if _, open := c.planks[p.ID]; open {
			continue
		}
		tryPlank(p.ID, p, []models.FreeRect{{X: 0, Y: 0, Width: p.WidthMM, Height: p.HeightMM}})
	}

	sort.SliceStable(options, func(i, j int) bool {
		oi, oj := options[i], options[j]
		_, iOpen := c.planks[oi.plankID]
		_, jOpen := c.planks[oj.plankID]
		if iOpen != jOpen {
			return iOpen
		}
		areaI := areaOfPlank(c, oi)
		areaJ := areaOfPlank(c, oj)
		return areaI < areaJ
	})

	if len(options) > maxOptionsPerCut {
		options = options[:maxOptionsPerCut]
	}
	return options
}

func areaOfPlank(c *candidate, opt placementOption) int64 {
	if ps, ok := c.planks[opt.plankID]; ok {
		return ps.plank.Area()
	}
	return opt.plank.Area()
}

// applyPlacement mutates nc in place: opens the plank if needed, places the
// cut, computes the guillotine split, and pushes the usable remainders.
func applyPlacement(nc *candidate, opt placementOption, cut expandedCut, kerf int) {
	ps, ok := nc.planks[opt.plankID]
	if !ok {
		ps = &plankState{
			plank: opt.plank,
			free:  []models.FreeRect{{X: 0, Y: 0, Width: opt.plank.WidthMM, Height: opt.plank.HeightMM}},
		}
		nc.planks[opt.plankID] = ps
		nc.plankOrder = append(nc.plankOrder, opt.plankID)
	}

	r := ps.free[opt.freeIndex]
	ps.free = append(ps.free[:opt.freeIndex], ps.free[opt.freeIndex+1:]...)

	ps.cuts = append(ps.cuts, models.PlacedCut{
		RequestIndex: cut.requestIndex,
		X:            r.X, Y: r.Y,
		Width: opt.w, Height: opt.h,
		Rotated: opt.rotated,
	})
	ps.usedArea += int64(opt.w)*int64(opt.h) + int64(opt.w+opt.h)*int64(kerf)

	for _, rem := range guillotineSplit(r, opt.w, opt.h, kerf) {
		if rem.Width >= minUsefulRemainderMM && rem.Height >= minUsefulRemainderMM {
			ps.free = append(ps.free, rem)
		}
	}
}

// guillotineSplit computes both the horizontal-first and vertical-first
// splits and chooses whichever leaves the larger-area remainder rectangle.
func guillotineSplit(r models.FreeRect, w, h, kerf int) []models.FreeRect {
	hRight := models.FreeRect{X: r.X + w + kerf, Y: r.Y, Width: r.Width - w - kerf, Height: h}
	hBottom := models.FreeRect{X: r.X, Y: r.Y + h + kerf, Width: r.Width, Height: r.Height - h - kerf}

	vRight := models.FreeRect{X: r.X + w + kerf, Y: r.Y, Width: r.Width - w - kerf, Height: r.Height}
	vBottom := models.FreeRect{X: r.X, Y: r.Y + h + kerf, Width: w, Height: r.Height - h - kerf}

	hLarger := largerArea(hRight, hBottom)
	vLarger := largerArea(vRight, vBottom)

	if hLarger >= vLarger {
		return []models.FreeRect{hRight, hBottom}
	}
	return []models.FreeRect{vRight, vBottom}
}

func largerArea(a, b models.FreeRect) int64 {
	aa, ba := a.Area(), b.Area()
	if aa > ba {
		return aa
	}
	return ba
}

// buildResponse converts the winning candidate into the wire response. Free
// rectangles meeting the request's min_remainder thresholds are reported as
// salvageable leftovers; smaller ones were usable during placement but are
// not worth returning to stock.
func (o *Optimizer) buildResponse(best *candidate, req models.OptimizeCutsRequest) models.OptimizeCutsResponse {
	resp := models.OptimizeCutsResponse{}

	// Order used planks by the order they were opened for determinism.
	for _, id := range best.plankOrder {
		ps := best.planks[id]
		total := ps.plank.Area()
		waste := float64(total-ps.usedArea) / float64(total) * 100

		var salvageable []models.FreeRect
		for _, r := range ps.free {
			if r.Width >= req.MinRemainderWidthMM && r.Height >= req.MinRemainderHeightMM {
				salvageable = append(salvageable, r)
			}
		}

		resp.UsedPlanks = append(resp.UsedPlanks, models.UsedPlank{
			PlankID:      ps.plank.ID,
			WidthMM:      ps.plank.WidthMM,
			HeightMM:     ps.plank.HeightMM,
			ThicknessMM:  ps.plank.ThicknessMM,
			Material:     ps.plank.Material,
			Cuts:         ps.cuts,
			Salvageable:  salvageable,
			UsedAreaMM2:  ps.usedArea,
			WastePercent: waste,
		})
		resp.TotalAreaMM2 += total
		resp.UsedAreaMM2 += ps.usedArea
	}

	for _, c := range best.unplaced {
		resp.UnplacedCuts = append(resp.UnplacedCuts, models.CutRequest{
			WidthMM: c.width, HeightMM: c.height, ThicknessMM: c.thickness,
			Material: c.material, Quantity: 1,
		})
	}

	if resp.TotalAreaMM2 > 0 {
		resp.EfficiencyPercent = float64(resp.UsedAreaMM2) / float64(resp.TotalAreaMM2) * 100
	}

	o.logger.Info("cutting optimization complete",
		"planks_opened", len(resp.UsedPlanks),
		"unplaced", len(resp.UnplacedCuts),
		"efficiency_percent", resp.EfficiencyPercent,
	)

	return resp
}
