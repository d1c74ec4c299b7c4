package client

// PredictionMetrics tracks how often local prediction agreed with the server
// and how large the misses were, in blocks.
type PredictionMetrics struct {
	TotalPredictions uint64  `json:"totalPredictions"`
	TotalMismatches  uint64  `json:"totalMismatches"`
	TotalRewinds     uint64  `json:"totalRewinds"`
	TotalDesyncs     uint64  `json:"totalDesyncs"`
	AvgErrorDistance float64 `json:"avgErrorDistance"`
	MaxErrorDistance float64 `json:"maxErrorDistance"`
}

func (m *PredictionMetrics) notePrediction() {
	m.TotalPredictions++
}

func (m *PredictionMetrics) noteMismatch(errorDistance float64) {
	m.TotalMismatches++
	m.TotalRewinds++
	m.AvgErrorDistance = (m.AvgErrorDistance*float64(m.TotalMismatches-1) + errorDistance) / float64(m.TotalMismatches)
	if errorDistance > m.MaxErrorDistance {
		m.MaxErrorDistance = errorDistance
	}
}

func (m *PredictionMetrics) noteDesync() {
	m.TotalDesyncs++
}
