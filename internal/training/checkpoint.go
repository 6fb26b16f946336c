package training

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"iquitos-ems/internal/agent"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/logging"
)

const FinalCheckpoint = "final.bin"

// CheckpointMeta identifies the run a snapshot belongs to.
type CheckpointMeta struct {
	Agent       string
	Step        int
	Episode     int
	Seed        uint64
	Fingerprint string
}

type checkpointFile struct {
	Meta   CheckpointMeta
	Policy []byte
}

// Checkpointer writes agent snapshots under <root>/<agent>/.
type Checkpointer struct {
	dir     string
	retain  bool
	written []string
	log     zerolog.Logger

	// write persists data at path atomically; swapped in tests.
	write func(path string, data []byte) error
}

func NewCheckpointer(root, agentName string, retain bool) *Checkpointer {
	return &Checkpointer{
		dir:    filepath.Join(root, agentName),
		retain: retain,
		log:    logging.Component("checkpoint").With().Str("agent", agentName).Logger(),
		write:  writeAtomic,
	}
}

func (c *Checkpointer) Dir() string { return c.dir }

// StepName is the file name of the intermediate snapshot at step n.
func StepName(n int) string { return fmt.Sprintf("step_%d.bin", n) }

// Step writes an intermediate snapshot.
func (c *Checkpointer) Step(meta CheckpointMeta, a agent.Agent) (string, error) {
	path, err := c.save(StepName(meta.Step), meta, a)
	if err != nil {
		return "", err
	}
	c.written = append(c.written, path)
	return path, nil
}

// Final writes final.bin and, unless intermediate snapshots are retained,
// removes the ones written during this run.
func (c *Checkpointer) Final(meta CheckpointMeta, a agent.Agent) (string, error) {
	path, err := c.save(FinalCheckpoint, meta, a)
	if err != nil {
		return "", err
	}
	if !c.retain {
		c.prune()
	}
	return path, nil
}

func (c *Checkpointer) save(name string, meta CheckpointMeta, a agent.Agent) (string, error) {
	var policy bytes.Buffer
	if err := a.Save(&policy); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", meta.Agent, err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(checkpointFile{Meta: meta, Policy: policy.Bytes()}); err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", &fault.CheckpointIOError{Path: c.dir, Err: err}
	}
	path := filepath.Join(c.dir, name)
	err := c.write(path, buf.Bytes())
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("checkpoint write failed, retrying")
		err = c.write(path, buf.Bytes())
	}
	if err != nil {
		return "", &fault.CheckpointIOError{Path: path, Err: err}
	}
	c.log.Debug().Str("path", path).Int("step", meta.Step).Msg("checkpoint written")
	return path, nil
}

func (c *Checkpointer) prune() {
	for _, p := range c.written {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.log.Warn().Err(err).Str("path", p).Msg("prune checkpoint")
		}
	}
	c.written = nil
}

// List returns the snapshot files in the agent directory, sorted by name.
func (c *Checkpointer) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.bin"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// LoadCheckpoint restores a into the state stored at path.
func LoadCheckpoint(path string, a agent.Agent) (CheckpointMeta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CheckpointMeta{}, &fault.CheckpointIOError{Path: path, Err: err}
	}
	var f checkpointFile
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&f); err != nil {
		return CheckpointMeta{}, &fault.CheckpointIOError{Path: path, Err: err}
	}
	if f.Meta.Agent != a.Name() {
		return f.Meta, fmt.Errorf("checkpoint %s holds %s, not %s", path, f.Meta.Agent, a.Name())
	}
	if err := a.Load(bytes.NewReader(f.Policy)); err != nil {
		return f.Meta, fmt.Errorf("restore %s: %w", path, err)
	}
	return f.Meta, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
