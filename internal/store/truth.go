package store

// TruthValue is a (strength, confidence) pair attached to any entity.
// Strength is degree of belief, priority or achievement depending on
// context; confidence is the reliability of that estimate.
type TruthValue struct {
	Strength   float64
	Confidence float64
}

// Clamp returns the truth value with both components forced into [0,1].
func (tv TruthValue) Clamp() TruthValue {
	return TruthValue{
		Strength:   clamp01(tv.Strength),
		Confidence: clamp01(tv.Confidence),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
