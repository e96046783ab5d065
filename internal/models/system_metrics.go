package models

import "time"

// SystemMetrics is a JSON snapshot of the process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	GenerationRuns           uint64    `json:"generation_runs"`
	AverageGenerationMs      float64   `json:"average_generation_ms"`
	UnscheduledUnits         uint64    `json:"unscheduled_units"`
	Substitutions            uint64    `json:"substitutions"`
	SubstitutionMisses       uint64    `json:"substitution_misses"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
