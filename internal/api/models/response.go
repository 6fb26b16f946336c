package models

import "time"

// ResultSummary is the list view of one result bundle
type ResultSummary struct {
	Agent          string  `json:"agent"`
	RunID          string  `json:"run_id"`
	Status         string  `json:"status"`
	Episodes       int     `json:"episodes"`
	Steps          int     `json:"steps"`
	CarbonKg       float64 `json:"carbon_kg"`
	GridImportKWh  float64 `json:"grid_import_kwh"`
	EVSatisfaction float64 `json:"ev_satisfaction"`
	WallTimeS      float64 `json:"wall_time_s"`
}

// ResultsResponse is returned by GET /api/v1/results
type ResultsResponse struct {
	Results []ResultSummary `json:"results"`
}

// EpisodeRow is one persisted episode
type EpisodeRow struct {
	RunID          string    `json:"run_id"`
	Episode        int       `json:"episode"`
	Steps          int       `json:"steps"`
	RewardMean     float64   `json:"reward_mean"`
	CarbonKg       float64   `json:"carbon_kg"`
	GridImportKWh  float64   `json:"grid_import_kwh"`
	EVSatisfaction float64   `json:"ev_satisfaction"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// EpisodesResponse is returned by GET /api/v1/runs/:agent/episodes
type EpisodesResponse struct {
	Agent    string       `json:"agent"`
	Episodes []EpisodeRow `json:"episodes"`
}

// PresetInfo describes one reward weight preset
type PresetInfo struct {
	Name    string             `json:"name"`
	Default bool               `json:"default"`
	Weights map[string]float64 `json:"weights"`
}

// PresetsResponse is returned by GET /api/v1/reward/presets
type PresetsResponse struct {
	Presets []PresetInfo `json:"presets"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
