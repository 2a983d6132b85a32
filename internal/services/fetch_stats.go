package services

import (
	"errors"
	"sync/atomic"
)

// Fetch outcomes as reported on /metrics and in the system log.
const (
	OutcomeSuccess       = "success"
	OutcomeNotConfigured = "not_configured"
	OutcomeInvalidQuery  = "invalid_query"
	OutcomeUpstreamError = "upstream_error"
	OutcomeTimeout       = "timeout"
	OutcomeNetworkError  = "network_error"
)

var fetchOutcomes = [...]string{
	OutcomeSuccess,
	OutcomeNotConfigured,
	OutcomeInvalidQuery,
	OutcomeUpstreamError,
	OutcomeTimeout,
	OutcomeNetworkError,
}

// Outcome maps a FetchRaw result onto one of the outcome labels.
func Outcome(err error) string {
	var upstreamErr *UpstreamError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotConfigured):
		return OutcomeNotConfigured
	case errors.Is(err, ErrInvalidFetchOptions):
		return OutcomeInvalidQuery
	case errors.Is(err, ErrUpstreamTimeout):
		return OutcomeTimeout
	case errors.As(err, &upstreamErr):
		return OutcomeUpstreamError
	default:
		return OutcomeNetworkError
	}
}

// FetchStats counts proxy calls by outcome since process start.
type FetchStats struct {
	counts [len(fetchOutcomes)]atomic.Int64
}

func NewFetchStats() *FetchStats {
	return &FetchStats{}
}

func (f *FetchStats) Observe(outcome string) {
	for i, name := range fetchOutcomes {
		if name == outcome {
			f.counts[i].Add(1)
			return
		}
	}
}

// Snapshot returns the counters keyed by outcome. Every outcome is present.
func (f *FetchStats) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(fetchOutcomes))
	for i, name := range fetchOutcomes {
		out[name] = f.counts[i].Load()
	}
	return out
}

// Outcomes lists the outcome labels in a stable order.
func Outcomes() []string {
	return append([]string(nil), fetchOutcomes[:]...)
}
