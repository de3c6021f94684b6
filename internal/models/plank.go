package models

// Dimension bounds shared by planks and cut requests.
const (
	MinDimensionMM = 10
	MaxDimensionMM = 10000
	MaxThicknessMM = 1000

	MinQuantity = 1
	MaxQuantity = 1000
)

// Plank is a leftover sheet-stock remainder ("resto"). Negative ids are
// reserved for virtual full sheets synthesized by the cutting optimizer.
type Plank struct {
	ID          int64  `json:"id"`
	WidthMM     int    `json:"width_mm"`
	HeightMM    int    `json:"height_mm"`
	ThicknessMM int    `json:"thickness_mm"`
	Material    string `json:"material"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Validate enforces the dimension bounds a plank must satisfy before it
// enters the inventory.
func (p Plank) Validate() error {
	errs := &ValidationErrors{}
	ValidateRange(float64(p.WidthMM), MinDimensionMM, MaxDimensionMM, "width_mm", errs)
	ValidateRange(float64(p.HeightMM), MinDimensionMM, MaxDimensionMM, "height_mm", errs)
	ValidateRange(float64(p.ThicknessMM), 1, MaxThicknessMM, "thickness_mm", errs)
	ValidateRequired(p.Material, "material", errs)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Area returns the plank's area in square millimeters.
func (p Plank) Area() int64 {
	return int64(p.WidthMM) * int64(p.HeightMM)
}

// EligibleForCutting reports whether the plank is large enough to enter the
// cutting optimizer's inventory.
func (p Plank) EligibleForCutting() bool {
	return p.WidthMM >= MinDimensionMM && p.HeightMM >= MinDimensionMM
}

// CutRequest is one line of a cut list: quantity copies of a rectangle in a
// given material and thickness.
type CutRequest struct {
	WidthMM     int    `json:"width_mm"`
	HeightMM    int    `json:"height_mm"`
	ThicknessMM int    `json:"thickness_mm"`
	Material    string `json:"material"`
	Quantity    int    `json:"quantity"`
}

// Validate enforces the dimension, thickness and quantity bounds of a cut
// request.
func (c CutRequest) Validate() error {
	errs := &ValidationErrors{}
	ValidateRange(float64(c.WidthMM), MinDimensionMM, MaxDimensionMM, "width_mm", errs)
	ValidateRange(float64(c.HeightMM), MinDimensionMM, MaxDimensionMM, "height_mm", errs)
	ValidateRange(float64(c.ThicknessMM), 1, MaxThicknessMM, "thickness_mm", errs)
	ValidateRange(float64(c.Quantity), MinQuantity, MaxQuantity, "quantity", errs)
	ValidateRequired(c.Material, "material", errs)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// PlacedCut is a single cut placed on a plank.
type PlacedCut struct {
	RequestIndex int  `json:"request_index"`
	X            int  `json:"x"`
	Y            int  `json:"y"`
	Width        int  `json:"width"`
	Height       int  `json:"height"`
	Rotated      bool `json:"rotated"`
}

// FreeRect is an axis-aligned free region remaining on a plank.
type FreeRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the free rectangle's area.
func (r FreeRect) Area() int64 {
	return int64(r.Width) * int64(r.Height)
}

// UsedPlank aggregates a plank and everything placed on it. Created lazily
// the first time a cut lands on that plank; frozen once the optimizer
// returns.
type UsedPlank struct {
	PlankID      int64       `json:"resto_id"`
	WidthMM      int         `json:"width_mm"`
	HeightMM     int         `json:"height_mm"`
	ThicknessMM  int         `json:"thickness_mm"`
	Material     string      `json:"material"`
	Cuts         []PlacedCut `json:"cuts"`
	Salvageable  []FreeRect  `json:"salvageable,omitempty"`
	UsedAreaMM2  int64       `json:"used_area_mm2"`
	WastePercent float64     `json:"waste_percent"`
}

// OptimizeCutsRequest is the top-level request to the cutting optimizer.
type OptimizeCutsRequest struct {
	Cuts                 []CutRequest `json:"cuts"`
	KerfWidthMM          int          `json:"kerf_width_mm"`
	MinRemainderWidthMM  int          `json:"min_remainder_width_mm"`
	MinRemainderHeightMM int          `json:"min_remainder_height_mm"`
}

// Defaults fills in the kerf and min-remainder defaults.
func (r *OptimizeCutsRequest) Defaults() {
	if r.KerfWidthMM <= 0 {
		r.KerfWidthMM = 3
	}
	if r.MinRemainderWidthMM <= 0 {
		r.MinRemainderWidthMM = 100
	}
	if r.MinRemainderHeightMM <= 0 {
		r.MinRemainderHeightMM = 100
	}
}

// OptimizeCutsResponse is the cutting optimizer's total result.
type OptimizeCutsResponse struct {
	UsedPlanks        []UsedPlank  `json:"used_planks"`
	UnplacedCuts      []CutRequest `json:"unplaced_cuts"`
	EfficiencyPercent float64      `json:"efficiency_percent"`
	TotalAreaMM2      int64        `json:"total_area_mm2"`
	UsedAreaMM2       int64        `json:"used_area_mm2"`
}
