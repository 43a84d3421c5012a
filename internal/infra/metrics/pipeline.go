package metrics

import "time"

func ObserveAdvance(phase, outcome string, elapsed time.Duration) {
	advanceLatency.WithLabelValues(norm(phase), norm(outcome)).
		Observe(float64(elapsed.Milliseconds()))
}

func ObserveProviderCall(provider, op string, elapsed time.Duration, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	providerCallLatency.WithLabelValues(norm(provider), norm(op), s).
		Observe(float64(elapsed.Milliseconds()))
}

func AddMigratedBytes(stage string, n int64) {
	if n > 0 {
		migratedBytesTotal.WithLabelValues(norm(stage)).Add(float64(n))
	}
}
