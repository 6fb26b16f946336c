package baseline

import (
	"fmt"
	"strings"

	"iquitos-ems/internal/agent"
	"iquitos-ems/internal/citylearn"
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
)

// window is a parsed schedule rule for one socket class.
type window struct {
	class    model.SocketClass
	start    int // minutes
	end      int // minutes, exclusive
	fraction float64
}

// fixedSchedule applies per-class power fractions inside daily windows and
// leaves the battery idle.
type fixedSchedule struct {
	layout  Layout
	windows []window
}

// NewFixedSchedule parses "HH:MM-HH:MM" windows per socket class.
func NewFixedSchedule(l Layout, rules []config.ScheduleWindow) (agent.Agent, error) {
	fs := &fixedSchedule{layout: l}
	for i, r := range rules {
		start, end, err := parseWindow(r.Window)
		if err != nil {
			return nil, fault.Config(fmt.Sprintf("oe3.baselines.fixed_schedule[%d].window", i), "%v", err)
		}
		fs.windows = append(fs.windows, window{
			class:    model.SocketClass(r.Class),
			start:    start,
			end:      end,
			fraction: r.Fraction,
		})
	}
	return &policy{name: "fixed_schedule", params: rules, d: fs}, nil
}

func (fs *fixedSchedule) decide(obs []float64) []float64 {
	a := make([]float64, len(fs.layout.Sockets)+1)
	mins := int(obs[citylearn.GlobalIndex("hour")]) * 60
	for s := range fs.layout.Sockets {
		class := model.SocketMoto
		if obs[citylearn.SocketIndex(s, "is_mototaxi")] > 0.5 {
			class = model.SocketMototaxi
		}
		for _, w := range fs.windows {
			if w.class == class && inWindow(mins, w.start, w.end) {
				a[s+1] = w.fraction
				break
			}
		}
	}
	return a
}

func parseWindow(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid window %q, expected HH:MM-HH:MM", s)
	}
	start, err := parseHHMM(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseHHMM(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	// 24:00 closes a window at midnight.
	if h == 24 && m == 0 {
		return 24 * 60, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

// inWindow checks whether tMins is in [start, end) on a 24h clock. An empty
// window (start == end) never matches; start > end wraps across midnight.
func inWindow(tMins, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return tMins >= start && tMins < end
	}
	return tMins >= start || tMins < end
}
