package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"iquitos-ems/internal/env"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/reward"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// runNamespace scopes run IDs to this project.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("iquitos-ems/runs"))

// RunID is stable for a given agent, seed and dataset.
func RunID(agentName string, seed uint64, fingerprint string) string {
	return uuid.NewSHA1(runNamespace, []byte(fmt.Sprintf("%s|%d|%s", agentName, seed, fingerprint))).String()
}

// EpisodeSummary is one completed episode.
type EpisodeSummary struct {
	Episode        int     `json:"episode"`
	RewardMean     float64 `json:"reward_mean"`
	EVSatisfaction float64 `json:"ev_satisfaction"`
	env.EpisodeTotals
}

// MovingAverage is the state of the trailing reward window at run end.
type MovingAverage struct {
	Window     int                `json:"window"`
	RewardMean float64            `json:"reward_mean"`
	RewardStd  float64            `json:"reward_std"`
	Components map[string]float64 `json:"components"`
}

// ResultBundle is the JSON written per trained or evaluated agent.
type ResultBundle struct {
	RunID           string             `json:"run_id"`
	Agent           string             `json:"agent"`
	Status          string             `json:"status"`
	Seed            uint64             `json:"seed"`
	Episodes        int                `json:"episodes"`
	Steps           int                `json:"steps"`
	WallTimeS       float64            `json:"wall_time_s"`
	FinalCheckpoint string             `json:"final_checkpoint"`
	Hyperparameters map[string]any     `json:"hyperparameters"`
	Weights         reward.Weights     `json:"weights"`
	Fingerprint     string             `json:"dataset_fingerprint"`
	Totals          env.EpisodeTotals  `json:"totals"`
	ComponentMeans  map[string]float64 `json:"component_means"`
	MovingAverage   MovingAverage      `json:"moving_average"`
	Pareto          reward.Pareto      `json:"pareto"`
	EpisodeStats    []EpisodeSummary   `json:"episode_summaries"`
}

// EVSatisfaction of the reported totals.
func (b *ResultBundle) EVSatisfaction() float64 { return b.Totals.EVSatisfaction() }

// BundlePath is <out>/<agent>_training/result_<agent>.json.
func BundlePath(outputDir, agentName string) string {
	return filepath.Join(outputDir, agentName+"_training", "result_"+agentName+".json")
}

func WriteBundle(path string, b *ResultBundle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return writeAtomic(path, append(raw, '\n'))
}

func ReadBundle(path string) (*ResultBundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.InputNotFound(path, err)
	}
	var b ResultBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fault.InputSchema(path, "decode result bundle: %v", err)
	}
	return &b, nil
}

// ReadBundles loads every result_<agent>.json under outputDir, sorted by agent.
func ReadBundles(outputDir string) ([]*ResultBundle, error) {
	paths, err := filepath.Glob(filepath.Join(outputDir, "*_training", "result_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]*ResultBundle, 0, len(paths))
	for _, p := range paths {
		b, err := ReadBundle(p)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out, nil
}
