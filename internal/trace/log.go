// Package trace holds the append-only evaluation history of an optimization
// run. The log is explicitly owned by the driver and handed to the stages by
// reference; readers only ever see copies.
package trace

import (
	"sync"
	"time"

	"github.com/airshape/optimizer-core/internal/design"
	"github.com/airshape/optimizer-core/internal/flight"
)

// Stage labels recorded with each point.
const (
	StageSurrogate = "surrogate"
	StageSimplex   = "simplex"
)

// Point is one evaluated design: the vector, its loss, the per-term loss
// breakdown, the flight metrics snapshot, and whether the simulation failed.
type Point struct {
	Index   int                `json:"index"`
	Stage   string             `json:"stage"`
	Vector  design.Vector      `json:"vector"`
	Loss    float64            `json:"loss"`
	Terms   map[string]float64 `json:"terms"`
	Metrics *flight.Metrics    `json:"metrics,omitempty"`
	Failed  bool               `json:"failed"`
	At      time.Time          `json:"at"`
}

// clone returns a Point sharing no mutable state with the receiver.
func (p Point) clone() Point {
	p.Vector = p.Vector.Clone()
	if p.Terms != nil {
		terms := make(map[string]float64, len(p.Terms))
		for k, v := range p.Terms {
			terms[k] = v
		}
		p.Terms = terms
	}
	if p.Metrics != nil {
		m := *p.Metrics
		p.Metrics = &m
	}
	return p
}

// Recorder receives every appended point, e.g. for persistence. Append errors
// in a recorder must not disturb the run; implementations log and move on.
type Recorder interface {
	Record(p Point)
}

// Log is the append-only evaluation history. Points are never deleted or
// reordered.
type Log struct {
	mu       sync.RWMutex
	points   []Point
	recorder Recorder
}

// NewLog creates an empty history.
func NewLog() *Log {
	return &Log{}
}

// SetRecorder attaches a recorder that observes every subsequent append.
func (l *Log) SetRecorder(r Recorder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorder = r
}

// Append adds a point, assigns its index, and returns it. The stored copy
// shares nothing mutable with the caller's point or with the recorder's.
func (l *Log) Append(p Point) Point {
	l.mu.Lock()
	p.Index = len(l.points)
	if p.At.IsZero() {
		p.At = time.Now()
	}
	l.points = append(l.points, p.clone())
	recorder := l.recorder
	l.mu.Unlock()

	if recorder != nil {
		recorder.Record(p.clone())
	}
	return p
}

// Len returns the number of evaluated points.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.points)
}

// Snapshot returns a copy of the history for read-only use.
func (l *Log) Snapshot() []Point {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Point, len(l.points))
	for i, p := range l.points {
		out[i] = p.clone()
	}
	return out
}

// Best returns the point with minimum loss, or false on an empty log.
func (l *Log) Best() (Point, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.points) == 0 {
		return Point{}, false
	}
	best := l.points[0]
	for _, p := range l.points[1:] {
		if p.Loss < best.Loss {
			best = p
		}
	}
	return best.clone(), true
}
