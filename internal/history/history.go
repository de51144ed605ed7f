package history

import (
	"time"
)

// Point is one sampled feed update kept in the rolling history.
type Point struct {
	Price       float64
	Volume      float64
	SourceCount int
	LatencyMS   float64
	Timestamp   time.Time
}

// Rolling is a bounded FIFO history of feed updates. Oldest points are
// evicted on overflow. Not safe for concurrent use; the owning pipeline
// serializes access per feed.
type Rolling struct {
	points   []Point
	head     int
	capacity int
}

func NewRolling(capacity int) *Rolling {
	if capacity <= 0 {
		capacity = 100
	}
	return &Rolling{
		points:   make([]Point, 0, capacity),
		capacity: capacity,
	}
}

// Add appends a point, evicting the oldest when at capacity.
func (r *Rolling) Add(p Point) {
	if r.Len() == r.capacity {
		r.head++
		if r.head*2 >= len(r.points) {
			r.points = append([]Point{}, r.points[r.head:]...)
			r.head = 0
		}
	}
	r.points = append(r.points, p)
}

func (r *Rolling) Len() int {
	return len(r.points) - r.head
}

// Last returns the n most recent points, oldest first. It returns fewer
// than n when the history is shorter, and the backing array is shared, so
// callers must not mutate the result.
func (r *Rolling) Last(n int) []Point {
	if n <= 0 {
		return nil
	}
	live := r.points[r.head:]
	if n >= len(live) {
		return live
	}
	return live[len(live)-n:]
}

// Prices returns the n most recent prices, oldest first.
func (r *Rolling) Prices(n int) []float64 {
	pts := r.Last(n)
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Price
	}
	return out
}

// Volumes returns the n most recent volumes, oldest first.
func (r *Rolling) Volumes(n int) []float64 {
	pts := r.Last(n)
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Volume
	}
	return out
}
