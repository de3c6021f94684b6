// Package loading implements the 3D guillotine bin-packing optimizer that
// places cargo items inside a van cavity, respecting fragility, weight
// ordering, rotation, and wheel-well exclusion zones.
package loading

import (
	"fmt"
	"log/slog"
	"sort"

	"retlister/internal/models"
)

// Optimizer runs the guillotine 3D loading algorithm.
type Optimizer struct {
	logger *slog.Logger
}

// New creates a loading Optimizer.
func New(logger *slog.Logger) *Optimizer {
	return &Optimizer{logger: logger}
}

// cuboid is an axis-aligned free region of the van cavity. X runs along the
// van's length, Z along its width, Y is the vertical axis.
type cuboid struct {
	X, Y, Z                     int
	LengthMM, WidthMM, HeightMM int
}

func (c cuboid) volume() int64 {
	return int64(c.LengthMM) * int64(c.WidthMM) * int64(c.HeightMM)
}

// orientation is one axis-aligned assignment of an item's three dimensions
// to the van's length/width/height axes.
type orientation struct {
	lengthMM, widthMM, heightMM int
	rotationY                   int
}

// Run loads items into van one at a time, returning a total plan: the
// optimizer never fails once validation passes, it only reports warnings
// for items it could not place. An inactive van is a domain error, not a
// warning.
func (o *Optimizer) Run(van models.Van, items []models.CargoItem) (models.OptimizeResponse, error) {
	if !van.Active {
		return models.OptimizeResponse{}, models.NewNotFoundError("van", models.CodeVanNotFound)
	}
	if len(items) == 0 {
		return models.OptimizeResponse{Success: false, Warnings: []string{"No items to load"}}, nil
	}

	ordered := orderItems(items)

	pool := []cuboid{{
		X: 0, Y: 0, Z: 0,
		LengthMM: van.LengthMM, WidthMM: van.WidthMM, HeightMM: van.HeightMM,
	}}

	var placed []models.PositionedItem
	var warnings []string
	var totalWeight float64
	var usedVolume int64

	for _, item := range ordered {
		if item.LengthMM < models.MinCargoDimensionMM || item.LengthMM > models.MaxCargoDimensionMM ||
			item.WidthMM < models.MinCargoDimensionMM || item.WidthMM > models.MaxCargoDimensionMM ||
			item.HeightMM < models.MinCargoDimensionMM || item.HeightMM > models.MaxCargoDimensionMM {
			warnings = append(warnings, fmt.Sprintf("Item '%s' exceeds allowed dimensions", item.Description))
		}
		if item.WeightKG > models.MaxCargoWeightKG {
			warnings = append(warnings, fmt.Sprintf("Item '%s' exceeds allowed weight", item.Description))
		}

		cuboidIdx, orient, ok := bestFit(pool, item, van)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("Item '%s' could not be placed", item.Description))
			continue
		}

		free := pool[cuboidIdx]
		pool = append(pool[:cuboidIdx], pool[cuboidIdx+1:]...)

		placed = append(placed, models.PositionedItem{
			Item:      item,
			X:         free.X,
			Y:         free.Y,
			Z:         free.Z,
			LengthMM:  orient.lengthMM,
			WidthMM:   orient.widthMM,
			HeightMM:  orient.heightMM,
			RotationY: orient.rotationY,
			Level:     free.Y / 500,
		})

		totalWeight += item.WeightKG
		usedVolume += int64(orient.lengthMM) * int64(orient.widthMM) * int64(orient.heightMM)

		pool = append(pool, splitCuboid(free, orient)...)
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].volume() > pool[j].volume() })
	}

	if van.MaxWeightKG > 0 && totalWeight > van.MaxWeightKG {
		warnings = append(warnings, fmt.Sprintf("Total weight %.1fkg exceeds the van's %.1fkg limit", totalWeight, van.MaxWeightKG))
	}

	vanVolume := int64(van.LengthMM) * int64(van.WidthMM) * int64(van.HeightMM)
	utilization := 0.0
	if vanVolume > 0 {
		utilization = float64(usedVolume) / float64(vanVolume) * 100
		if utilization > 100 {
			utilization = 100
		}
	}

	plan := &models.LoadingPlan{
		VanID:              van.ID,
		PositionedItems:    placed,
		TotalWeightKG:      totalWeight,
		UtilizationPercent: utilization,
		VanVolumeMM3:       vanVolume,
		UsedVolumeMM3:      usedVolume,
		Warnings:           warnings,
	}

	o.logger.Info("loading optimization complete",
		"van_id", van.ID,
		"items_placed", len(placed),
		"items_total", len(items),
		"utilization_percent", utilization,
	)

	return models.OptimizeResponse{Success: true, Plan: plan, Warnings: warnings}, nil
}

// orderItems sorts non-fragile first (so fragile items land on top), then
// heavier first, then larger volume first.
func orderItems(items []models.CargoItem) []models.CargoItem {
	ordered := append([]models.CargoItem(nil), items...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Fragile != b.Fragile {
			return !a.Fragile
		}
		if a.WeightKG != b.WeightKG {
			return a.WeightKG > b.WeightKG
		}
		return a.Volume() > b.Volume()
	})
	return ordered
}

// orientations returns every axis-aligned assignment of item's dimensions to
// the van's length/width/height axes the item is allowed to use.
func orientations(item models.CargoItem) []orientation {
	l, w, h := item.LengthMM, item.WidthMM, item.HeightMM
	canonical := orientation{lengthMM: l, widthMM: w, heightMM: h, rotationY: 0}
	if !item.RotationAllowed {
		return []orientation{canonical}
	}

	perms := [][3]int{
		{l, w, h}, {l, h, w},
		{w, l, h}, {w, h, l},
		{h, l, w}, {h, w, l},
	}
	out := make([]orientation, 0, 6)
	for _, p := range perms {
		rot := 0
		if p != [3]int{l, w, h} {
			rot = 90
		}
		out = append(out, orientation{lengthMM: p[0], widthMM: p[1], heightMM: p[2], rotationY: rot})
	}
	return out
}

// bestFit scans every free cuboid x orientation and picks the one
// minimizing leftover volume, rejecting any that collides with a wheel well.
func bestFit(pool []cuboid, item models.CargoItem, van models.Van) (int, orientation, bool) {
	bestIdx := -1
	var bestOrient orientation
	bestWaste := int64(-1)

	for idx, c := range pool {
		for _, o := range orientations(item) {
			if o.lengthMM > c.LengthMM || o.widthMM > c.WidthMM || o.heightMM > c.HeightMM {
				continue
			}
			if collidesWithWheelWell(van, c.X, c.Y, c.Z, o.lengthMM, o.widthMM) {
				continue
			}
			waste := c.volume() - int64(o.lengthMM)*int64(o.widthMM)*int64(o.heightMM)
			if bestIdx == -1 || waste < bestWaste {
				bestIdx, bestOrient, bestWaste = idx, o, waste
			}
		}
	}

	if bestIdx == -1 {
		return 0, orientation{}, false
	}
	return bestIdx, bestOrient, true
}

// collidesWithWheelWell reports whether a placement at (x,y,z) with the
// given footprint intrudes into either side's wheel-well corridor.
func collidesWithWheelWell(van models.Van, x, y, z, lengthMM, widthMM int) bool {
	if !van.HasWheelWell() {
		return false
	}
	if x+lengthMM <= van.WheelWellStartXMM {
		return false
	}
	if y >= van.WheelWellHeightMM {
		return false
	}
	leftCorridor := z < van.WheelWellWidthMM
	rightCorridor := z+widthMM > van.WidthMM-van.WheelWellWidthMM
	return leftCorridor || rightCorridor
}

// splitCuboid splits the chosen free cuboid into three residual cuboids
// along the x, z, y axes in that order, keeping only those with strictly
// positive extent on every axis.
func splitCuboid(c cuboid, o orientation) []cuboid {
	var out []cuboid

	// Residual along x: remaining length, full width/height of the parent.
	xResidual := cuboid{
		X: c.X + o.lengthMM, Y: c.Y, Z: c.Z,
		LengthMM: c.LengthMM - o.lengthMM, WidthMM: c.WidthMM, HeightMM: c.HeightMM,
	}
	// Residual along z: remaining width, limited to the item's footprint in x.
	zResidual := cuboid{
		X: c.X, Y: c.Y, Z: c.Z + o.widthMM,
		LengthMM: o.lengthMM, WidthMM: c.WidthMM - o.widthMM, HeightMM: c.HeightMM,
	}
	// Residual along y: remaining height, limited to the item's footprint.
	yResidual := cuboid{
		X: c.X, Y: c.Y + o.heightMM, Z: c.Z,
		LengthMM: o.lengthMM, WidthMM: o.widthMM, HeightMM: c.HeightMM - o.heightMM,
	}

	for _, r := range []cuboid{xResidual, zResidual, yResidual} {
		if r.LengthMM > 0 && r.WidthMM > 0 && r.HeightMM > 0 {
			out = append(out, r)
		}
	}
	return out
}
