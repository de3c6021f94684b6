package models

// Cargo dimension and weight bounds.
const (
	MinCargoDimensionMM = 10
	MaxCargoDimensionMM = 5000
	MaxCargoWeightKG    = 500.0
)

// Van describes a delivery van's cargo cavity and optional wheel-well
// intrusion geometry.
type Van struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	LengthMM          int     `json:"length_mm"`
	WidthMM           int     `json:"width_mm"`
	HeightMM          int     `json:"height_mm"`
	MaxWeightKG       float64 `json:"max_weight_kg,omitempty"`
	WheelWellHeightMM int     `json:"wheel_well_height_mm,omitempty"`
	WheelWellWidthMM  int     `json:"wheel_well_width_mm,omitempty"`
	WheelWellStartXMM int     `json:"wheel_well_start_x_mm,omitempty"`
	Active            bool    `json:"active"`
}

// Validate enforces the cavity bounds and wheel-well geometry invariants.
func (v Van) Validate() error {
	errs := &ValidationErrors{}
	ValidateRequired(v.Name, "name", errs)
	ValidateRange(float64(v.LengthMM), 1, MaxDimensionMM, "length_mm", errs)
	ValidateRange(float64(v.WidthMM), 1, MaxDimensionMM, "width_mm", errs)
	ValidateRange(float64(v.HeightMM), 1, MaxDimensionMM, "height_mm", errs)
	if v.WheelWellHeightMM > v.HeightMM {
		errs.Add("wheel_well_height_mm", "wheel well height cannot exceed van height")
	}
	if v.WheelWellWidthMM*2 > v.WidthMM {
		errs.Add("wheel_well_width_mm", "wheel well width cannot exceed half the van width")
	}
	if v.WheelWellStartXMM < 0 || v.WheelWellStartXMM > v.LengthMM {
		errs.Add("wheel_well_start_x_mm", "wheel well start must lie within the van length")
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// HasWheelWell reports whether the van's wheel-well dimensions exclude any
// placement volume. A zero or unset dimension disables the exclusion
// entirely.
func (v Van) HasWheelWell() bool {
	return v.WheelWellHeightMM > 0 && v.WheelWellWidthMM > 0
}

// CargoItem is one item to be loaded into a van.
type CargoItem struct {
	Description     string  `json:"description"`
	LengthMM        int     `json:"length_mm"`
	WidthMM         int     `json:"width_mm"`
	HeightMM        int     `json:"height_mm"`
	WeightKG        float64 `json:"weight_kg"`
	Fragile         bool    `json:"fragile"`
	RotationAllowed bool    `json:"rotation_allowed"`
	Stackable       bool    `json:"stackable"`
}

// Volume returns the item's volume in cubic millimeters.
func (c CargoItem) Volume() int64 {
	return int64(c.LengthMM) * int64(c.WidthMM) * int64(c.HeightMM)
}

// Validate checks the description; oversize and overweight conditions are
// warnings rather than validation failures, so the loading optimizer
// reports those itself.
func (c CargoItem) Validate() error {
	errs := &ValidationErrors{}
	ValidateRequired(c.Description, "description", errs)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// PositionedItem is a CargoItem placed at a specific location and rotation
// inside a van.
type PositionedItem struct {
	Item      CargoItem `json:"item"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Z         int       `json:"z"`
	LengthMM  int       `json:"length_mm"`
	WidthMM   int       `json:"width_mm"`
	HeightMM  int       `json:"height_mm"`
	RotationY int       `json:"rotation_y"`
	Level     int       `json:"level"`
}

// OptimizeRequest is the request to the loading optimizer.
type OptimizeRequest struct {
	VanID int64       `json:"van_id"`
	Items []CargoItem `json:"items"`
}

// LoadingPlan is the loading optimizer's total result.
type LoadingPlan struct {
	VanID              int64            `json:"van_id"`
	PositionedItems    []PositionedItem `json:"positioned_items"`
	TotalWeightKG      float64          `json:"total_weight_kg"`
	UtilizationPercent float64          `json:"utilization_percent"`
	VanVolumeMM3       int64            `json:"van_volume_mm3"`
	UsedVolumeMM3      int64            `json:"used_volume_mm3"`
	Warnings           []string         `json:"warnings"`
}

// OptimizeResponse wraps the plan the way the optimizer endpoint returns it:
// a plan on success, or warnings alone when nothing could be built at all.
type OptimizeResponse struct {
	Success  bool         `json:"success"`
	Plan     *LoadingPlan `json:"plan,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}
