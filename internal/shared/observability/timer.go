package observability

import "time"

func newPhaseTimer(phase string) func() {
	start := time.Now()
	return func() {
		PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}

// ObserveParse records the parse duration for a loader.
func ObserveParse(loader string, start time.Time) {
	ParsingDuration.WithLabelValues(loader).Observe(time.Since(start).Seconds())
}
