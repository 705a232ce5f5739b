package resolver

// Signal is a performance or intensity measurement supplied by the caller,
// e.g. peak shake magnitude with the number of shakes, or a reaction time.
type Signal struct {
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// Rung is one tier of a Ladder. A signal reaches the rung when its value
// passes Threshold (if set) and its count exceeds MinCount (if positive).
type Rung struct {
	ID        string   `json:"id" yaml:"id"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold"`
	MinCount  int      `json:"min_count,omitempty" yaml:"min_count"`
}

// Ladder classifies a Signal into a performance tier. Rungs are checked in
// order, best first. It never selects a prize; the draw stays authoritative
// and the tier is informational.
type Ladder struct {
	Rungs []Rung `json:"rungs" yaml:"rungs"`
	// LowerIsBetter flips the threshold test, e.g. for reaction times.
	LowerIsBetter bool   `json:"lower_is_better,omitempty" yaml:"lower_is_better"`
	Fallback      string `json:"fallback,omitempty" yaml:"fallback"`
}

// Classify returns the first rung the signal reaches, or the fallback.
func (l *Ladder) Classify(s Signal) string {
	if l == nil {
		return ""
	}
	for _, r := range l.Rungs {
		if r.Threshold != nil {
			if l.LowerIsBetter && !(s.Value < *r.Threshold) {
				continue
			}
			if !l.LowerIsBetter && !(s.Value > *r.Threshold) {
				continue
			}
		}
		if r.MinCount > 0 && s.Count <= r.MinCount {
			continue
		}
		return r.ID
	}
	return l.Fallback
}

// Threshold is a helper for building rungs in Go literals.
func Threshold(v float64) *float64 {
	return &v
}
