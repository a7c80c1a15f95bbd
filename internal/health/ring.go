package health

import "sort"

// RingCapacity is the number of bandwidth samples kept for the status view.
const RingCapacity = 120

// BandwidthSample is one stats/bw reading keyed by unix second.
type BandwidthSample struct {
	Time     int64   `json:"time"`
	TotalIn  int64   `json:"total_in"`
	TotalOut int64   `json:"total_out"`
	RateIn   float64 `json:"rate_in"`
	RateOut  float64 `json:"rate_out"`
}

// Ring keeps the most recent samples ordered by time. A sample for a second
// already present replaces it; overflow evicts the oldest.
type Ring struct {
	capacity int
	samples  []BandwidthSample
}

// NewRing returns a ring holding at most capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = RingCapacity
	}
	return &Ring{capacity: capacity, samples: make([]BandwidthSample, 0, capacity+1)}
}

// Add records sample.
func (r *Ring) Add(sample BandwidthSample) {
	idx := sort.Search(len(r.samples), func(i int) bool { return r.samples[i].Time >= sample.Time })
	if idx < len(r.samples) && r.samples[idx].Time == sample.Time {
		r.samples[idx] = sample
		return
	}
	r.samples = append(r.samples, BandwidthSample{})
	copy(r.samples[idx+1:], r.samples[idx:])
	r.samples[idx] = sample
	if over := len(r.samples) - r.capacity; over > 0 {
		r.samples = append(r.samples[:0], r.samples[over:]...)
	}
}

// Len returns the number of samples held.
func (r *Ring) Len() int { return len(r.samples) }

// Samples returns a copy of the samples, oldest first.
func (r *Ring) Samples() []BandwidthSample {
	out := make([]BandwidthSample, len(r.samples))
	copy(out, r.samples)
	return out
}
