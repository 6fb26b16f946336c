package repository

import (
	"time"

	"iquitos-ems/internal/training"
)

// StoredEpisode is one completed episode of a run.
type StoredEpisode struct {
	ID                 uint   `gorm:"primaryKey"`
	RunID              string `gorm:"index"`
	Agent              string `gorm:"index"`
	Episode            int
	Steps              int
	RewardMean         float64
	RewardSum          float64
	CarbonKg           float64
	GridImportKWh      float64
	GridExportKWh      float64
	SolarKWh           float64
	EVChargingKWh      float64
	EVDemandKWh        float64
	EVSatisfaction     float64
	CO2AvoidedIndirect float64
	CO2AvoidedDirect   float64
	Cost               float64
	CreatedAt          time.Time
}

func newStoredEpisode(runID, agent string, s training.EpisodeSummary) *StoredEpisode {
	return &StoredEpisode{
		RunID:              runID,
		Agent:              agent,
		Episode:            s.Episode,
		Steps:              s.Steps,
		RewardMean:         s.RewardMean,
		RewardSum:          s.RewardSum,
		CarbonKg:           s.CarbonKg,
		GridImportKWh:      s.GridImportKWh,
		GridExportKWh:      s.GridExportKWh,
		SolarKWh:           s.SolarKWh,
		EVChargingKWh:      s.EVChargingKWh,
		EVDemandKWh:        s.EVDemandKWh,
		EVSatisfaction:     s.EVSatisfaction,
		CO2AvoidedIndirect: s.CO2AvoidedIndirect,
		CO2AvoidedDirect:   s.CO2AvoidedDirect,
		Cost:               s.Cost,
	}
}

// StoredCheckpoint records a snapshot written during a run.
type StoredCheckpoint struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"index"`
	Agent     string `gorm:"index"`
	Step      int
	Path      string
	CreatedAt time.Time
}
