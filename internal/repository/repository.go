// Package repository stores episode and checkpoint rows of training runs in
// a local sqlite file.
package repository

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"iquitos-ems/internal/training"
)

type Repository struct {
	db *gorm.DB
}

var _ training.Recorder = (*Repository)(nil)

func New(path string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&StoredEpisode{}, &StoredCheckpoint{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Repository) RecordEpisode(runID, agent string, s training.EpisodeSummary) error {
	return r.db.Create(newStoredEpisode(runID, agent, s)).Error
}

func (r *Repository) RecordCheckpoint(runID, agent string, step int, path string) error {
	return r.db.Create(&StoredCheckpoint{RunID: runID, Agent: agent, Step: step, Path: path}).Error
}

// Episodes returns the latest limit episodes recorded for agent, oldest
// first. limit <= 0 means all of them.
func (r *Repository) Episodes(agent string, limit int) ([]StoredEpisode, error) {
	var rows []StoredEpisode
	q := r.db.Where("agent = ?", agent).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (r *Repository) Checkpoints(agent string) ([]StoredCheckpoint, error) {
	var rows []StoredCheckpoint
	if err := r.db.Where("agent = ?", agent).Order("step asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteRun removes every row of a run, so a rerun with the same ID starts clean.
func (r *Repository) DeleteRun(runID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&StoredEpisode{}).Error; err != nil {
			return err
		}
		return tx.Where("run_id = ?", runID).Delete(&StoredCheckpoint{}).Error
	})
}
