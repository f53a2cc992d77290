package loadtest

import (
	"math"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Percentiles reported by Summarize.
var Percentiles = []int{50, 75, 90, 95, 99}

// Stats collects request outcomes. Safe for concurrent use.
type Stats struct {
	mu          sync.Mutex
	total       int
	success     int
	duplicates  int
	badRequest  int
	errors      int
	durations   []time.Duration
	statusCodes map[int]int
}

func NewStats() *Stats {
	return &Stats{statusCodes: make(map[int]int)}
}

// Record adds one request. status 0 means the request never got a response.
func (s *Stats) Record(status int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.durations = append(s.durations, d)
	if status == 0 {
		s.errors++
		return
	}
	s.statusCodes[status]++
	switch status {
	case http.StatusOK:
		s.success++
	case http.StatusConflict:
		s.duplicates++
	case http.StatusBadRequest:
		s.badRequest++
	default:
		s.errors++
	}
}

func (s *Stats) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

type Summary struct {
	Total       int
	Success     int
	Duplicates  int
	BadRequest  int
	Errors      int
	StatusCodes map[int]int
	Elapsed     time.Duration

	Min, Max, Avg, Median time.Duration
	Percentiles           map[int]time.Duration

	// Set when the last 10% of requests averaged over 1.5x the overall
	// average. Only checked past 100 requests.
	Degraded  bool
	RecentAvg time.Duration
}

// RPS is requests per second over the elapsed time.
func (s Summary) RPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Total) / s.Elapsed.Seconds()
}

func (s Summary) SuccessRate() float64 { return rate(s.Success, s.Total) }

// ErrorRate counts everything that was not a 200.
func (s Summary) ErrorRate() float64 {
	return rate(s.Errors+s.Duplicates+s.BadRequest, s.Total)
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Summarize computes the report figures.
func (s *Stats) Summarize(elapsed time.Duration) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Total:       s.total,
		Success:     s.success,
		Duplicates:  s.duplicates,
		BadRequest:  s.badRequest,
		Errors:      s.errors,
		StatusCodes: make(map[int]int, len(s.statusCodes)),
		Elapsed:     elapsed,
		Percentiles: make(map[int]time.Duration, len(Percentiles)),
	}
	for code, n := range s.statusCodes {
		sum.StatusCodes[code] = n
	}
	if len(s.durations) == 0 {
		return sum
	}

	sorted := slices.Clone(s.durations)
	slices.Sort(sorted)
	sum.Min = sorted[0]
	sum.Max = sorted[len(sorted)-1]
	sum.Median = sorted[len(sorted)/2]
	sum.Avg = average(s.durations)
	for _, p := range Percentiles {
		sum.Percentiles[p] = percentile(sorted, p)
	}

	if s.total > 100 {
		recent := s.durations[len(s.durations)-s.total/10:]
		sum.RecentAvg = average(recent)
		sum.Degraded = float64(sum.RecentAvg) > float64(sum.Avg)*1.5
	}
	return sum
}

// percentile uses the nearest-rank method on sorted data.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := int(math.Ceil(float64(len(sorted)*p)/100)) - 1
	return sorted[max(0, idx)]
}

func average(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}
