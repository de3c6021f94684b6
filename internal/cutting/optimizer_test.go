package cutting

import (
	"io"
	"log/slog"
	"testing"

	"retlister/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rectsOverlap(ax, ay, aw, ah, bx, by, bw, bh int) bool {
	return ax < bx+bw && bx < ax+aw && ay < by+bh && by < ay+ah
}

func TestNoCutOverlap(t *testing.T) {
	opt := New(testLogger())
	inventory := []models.Plank{
		{ID: 1, WidthMM: 1200, HeightMM: 1200, ThicknessMM: 18, Material: "oak"},
	}
	req := models.OptimizeCutsRequest{
		Cuts: []models.CutRequest{
			{WidthMM: 400, HeightMM: 300, ThicknessMM: 18, Material: "oak", Quantity: 4},
			{WidthMM: 200, HeightMM: 150, ThicknessMM: 18, Material: "oak", Quantity: 6},
		},
		KerfWidthMM: 3,
	}

	resp := opt.Run(req, inventory)

	for _, plank := range resp.UsedPlanks {
		for i, a := range plank.Cuts {
			if a.X < 0 || a.Y < 0 || a.X+a.Width > plank.WidthMM || a.Y+a.Height > plank.HeightMM {
				t.Errorf("cut %d out of plank bounds: %+v on plank %dx%d", i, a, plank.WidthMM, plank.HeightMM)
			}
			for j, b := range plank.Cuts {
				if i == j {
					continue
				}
				kerf := req.KerfWidthMM
				if rectsOverlap(a.X, a.Y, a.Width+kerf, a.Height+kerf, b.X, b.Y, b.Width+kerf, b.Height+kerf) {
					t.Errorf("cuts overlap (kerf-expanded): %+v and %+v", a, b)
				}
			}
		}
	}
}

func TestAreaConservation(t *testing.T) {
	opt := New(testLogger())
	inventory := []models.Plank{
		{ID: 1, WidthMM: 1000, HeightMM: 1000, ThicknessMM: 18, Material: "oak"},
	}
	req := models.OptimizeCutsRequest{
		Cuts:        []models.CutRequest{{WidthMM: 300, HeightMM: 200, ThicknessMM: 18, Material: "oak", Quantity: 5}},
		KerfWidthMM: 3,
	}

	resp := opt.Run(req, inventory)

	for _, plank := range resp.UsedPlanks {
		total := int64(plank.WidthMM) * int64(plank.HeightMM)
		if plank.UsedAreaMM2 > total {
			t.Errorf("used area %d exceeds plank area %d", plank.UsedAreaMM2, total)
		}
	}
}

func TestOrientationCorrectness(t *testing.T) {
	opt := New(testLogger())
	inventory := []models.Plank{
		{ID: 1, WidthMM: 1000, HeightMM: 400, ThicknessMM: 18, Material: "oak"},
	}
	req := models.OptimizeCutsRequest{
		Cuts:        []models.CutRequest{{WidthMM: 900, HeightMM: 100, ThicknessMM: 18, Material: "oak", Quantity: 1}},
		KerfWidthMM: 3,
	}

	resp := opt.Run(req, inventory)
	if len(resp.UsedPlanks) != 1 || len(resp.UsedPlanks[0].Cuts) != 1 {
		t.Fatalf("expected one placed cut, got %+v", resp)
	}

	cut := resp.UsedPlanks[0].Cuts[0]
	if cut.Rotated {
		if cut.Width != 100 || cut.Height != 900 {
			t.Errorf("rotated cut should swap request dims: got %dx%d", cut.Width, cut.Height)
		}
	} else {
		if cut.Width != 900 || cut.Height != 100 {
			t.Errorf("non-rotated cut should match request dims: got %dx%d", cut.Width, cut.Height)
		}
	}
}

func TestPlacementCompletenessOnSufficientStock(t *testing.T) {
	opt := New(testLogger())
	inventory := []models.Plank{
		{ID: 1, WidthMM: 1000, HeightMM: 1000, ThicknessMM: 18, Material: "oak"},
	}
	req := models.OptimizeCutsRequest{
		Cuts:        []models.CutRequest{{WidthMM: 200, HeightMM: 200, ThicknessMM: 18, Material: "oak", Quantity: 1}},
		KerfWidthMM: 3,
	}

	resp := opt.Run(req, inventory)

	if len(resp.UsedPlanks) != 1 {
		t.Fatalf("expected exactly one opened plank, got %d", len(resp.UsedPlanks))
	}
	plank := resp.UsedPlanks[0]
	if plank.PlankID != 1 {
		t.Errorf("expected the single real plank to be opened, got id %d", plank.PlankID)
	}
	if len(plank.Cuts) != 1 {
		t.Fatalf("expected exactly one placed cut, got %d", len(plank.Cuts))
	}
	cut := plank.Cuts[0]
	if cut.X != 0 || cut.Y != 0 {
		t.Errorf("expected cut at (0,0), got (%d,%d)", cut.X, cut.Y)
	}
	if cut.Rotated {
		t.Errorf("expected rotated=false")
	}
	if len(resp.UnplacedCuts) != 0 {
		t.Errorf("expected no unplaced cuts, got %+v", resp.UnplacedCuts)
	}
}

func TestSalvageableRemaindersRespectThreshold(t *testing.T) {
	opt := New(testLogger())
	inventory := []models.Plank{
		{ID: 1, WidthMM: 1000, HeightMM: 1000, ThicknessMM: 18, Material: "oak"},
	}
	cuts := []models.CutRequest{{WidthMM: 200, HeightMM: 200, ThicknessMM: 18, Material: "oak", Quantity: 1}}

	// With the default 100mm threshold both remainders of the split qualify.
	resp := opt.Run(models.OptimizeCutsRequest{Cuts: cuts, KerfWidthMM: 3}, inventory)
	if len(resp.UsedPlanks) != 1 {
		t.Fatalf("expected one used plank, got %d", len(resp.UsedPlanks))
	}
	if len(resp.UsedPlanks[0].Salvageable) == 0 {
		t.Errorf("expected salvageable remainders at the default threshold")
	}
	for _, r := range resp.UsedPlanks[0].Salvageable {
		if r.Width < 100 || r.Height < 100 {
			t.Errorf("salvageable remainder below threshold: %+v", r)
		}
	}

	// A threshold larger than any remainder reports nothing, but placement
	// itself is unaffected.
	resp = opt.Run(models.OptimizeCutsRequest{
		Cuts: cuts, KerfWidthMM: 3,
		MinRemainderWidthMM: 900, MinRemainderHeightMM: 900,
	}, inventory)
	if len(resp.UsedPlanks) != 1 || len(resp.UnplacedCuts) != 0 {
		t.Fatalf("expected placement to be unaffected by the salvage threshold, got %+v", resp)
	}
	if len(resp.UsedPlanks[0].Salvageable) != 0 {
		t.Errorf("expected no salvageable remainders at a 900mm threshold, got %+v", resp.UsedPlanks[0].Salvageable)
	}
}

func TestVirtualSheetEscalation(t *testing.T) {
	opt := New(testLogger())
	req := models.OptimizeCutsRequest{
		Cuts:        []models.CutRequest{{WidthMM: 500, HeightMM: 500, ThicknessMM: 18, Material: "oak", Quantity: 1}},
		KerfWidthMM: 3,
	}

	resp := opt.Run(req, nil)

	if len(resp.UsedPlanks) != 1 {
		t.Fatalf("expected exactly one used plank, got %d", len(resp.UsedPlanks))
	}
	plank := resp.UsedPlanks[0]
	if plank.PlankID != -1 {
		t.Errorf("expected virtual sheet id -1, got %d", plank.PlankID)
	}
	if plank.WidthMM != FullSheetWidthMM || plank.HeightMM != FullSheetHeightMM {
		t.Errorf("expected virtual sheet %dx%d, got %dx%d", FullSheetWidthMM, FullSheetHeightMM, plank.WidthMM, plank.HeightMM)
	}
	if len(resp.UnplacedCuts) != 0 {
		t.Errorf("expected no unplaced cuts, got %+v", resp.UnplacedCuts)
	}
}

func TestVirtualSheetCap(t *testing.T) {
	opt := New(testLogger())
	// One full sheet is 2800x3000 = 8,400,000 mm^2. Request enough 2000x2000
	// cuts (4,000,000 mm^2 each, but awkward to tile) to exceed 10 sheets'
	// worth of area and force the cap.
	req := models.OptimizeCutsRequest{
		Cuts:        []models.CutRequest{{WidthMM: 2000, HeightMM: 2000, ThicknessMM: 18, Material: "oak", Quantity: 30}},
		KerfWidthMM: 3,
	}

	resp := opt.Run(req, nil)

	if len(resp.UnplacedCuts) == 0 {
		t.Fatalf("expected some unplaced cuts once the virtual-sheet cap is hit")
	}
	negativeIDs := 0
	for _, p := range resp.UsedPlanks {
		if p.PlankID < 0 {
			negativeIDs++
		}
	}
	if negativeIDs > MaxVirtualSheets {
		t.Errorf("expected at most %d virtual sheets, got %d", MaxVirtualSheets, negativeIDs)
	}
}
