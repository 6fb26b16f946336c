package models

// EpisodesQuery is the query string of GET /api/v1/runs/:agent/episodes
type EpisodesQuery struct {
	Limit int `form:"limit,default=100" binding:"min=0,max=10000"`
}

// ResultsQuery filters GET /api/v1/results
type ResultsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=completed cancelled"`
}
