package models

// MaterialStats aggregates plank counts and area by material.
type MaterialStats struct {
	Material     string `json:"material"`
	Count        int    `json:"count"`
	TotalAreaMM2 int64  `json:"total_area_mm2"`
}

// ThicknessStats aggregates plank counts by thickness.
type ThicknessStats struct {
	ThicknessMM int `json:"thickness_mm"`
	Count       int `json:"count"`
}

// StatsResponse is the /stats endpoint's payload.
type StatsResponse struct {
	TotalCount   int              `json:"total_count"`
	TotalAreaMM2 int64            `json:"total_area_mm2"`
	ByMaterial   []MaterialStats  `json:"by_material"`
	ByThickness  []ThicknessStats `json:"by_thickness"`
}

// SearchQuery is the best-match/filter search request shared by the online
// and offline search paths.
type SearchQuery struct {
	WidthMM     int    `json:"width_mm"`
	HeightMM    int    `json:"height_mm"`
	ThicknessMM int    `json:"thickness_mm"`
	Material    string `json:"material"`
}
