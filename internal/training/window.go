package training

import "gonum.org/v1/gonum/stat"

// movingWindow keeps the last n samples.
type movingWindow struct {
	buf  []float64
	next int
	full bool
}

func newMovingWindow(n int) *movingWindow {
	return &movingWindow{buf: make([]float64, max(1, n))}
}

func (w *movingWindow) Add(v float64) {
	w.buf[w.next] = v
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
}

func (w *movingWindow) values() []float64 {
	if w.full {
		return w.buf
	}
	return w.buf[:w.next]
}

func (w *movingWindow) Len() int { return len(w.values()) }

// MeanStd is the window mean and sample standard deviation; std is 0 with
// fewer than two samples.
func (w *movingWindow) MeanStd() (float64, float64) {
	v := w.values()
	switch len(v) {
	case 0:
		return 0, 0
	case 1:
		return v[0], 0
	}
	return stat.MeanStdDev(v, nil)
}
