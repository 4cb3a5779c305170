package detection

import "fmt"

// Selection policy names accepted by SelectorFor.
const (
	PolicyFirst = "first"
	PolicyBest  = "best"
)

// Selector picks the one detection to report for a frame.
type Selector func(relevant []Detection) (Detection, bool)

// SelectFirst returns the first relevant detection in detector order.
func SelectFirst(relevant []Detection) (Detection, bool) {
	if len(relevant) == 0 {
		return Detection{}, false
	}
	return relevant[0], true
}

// SelectBest returns the highest-confidence detection.
// Ties keep the earliest one so the result is stable across frames.
func SelectBest(relevant []Detection) (Detection, bool) {
	if len(relevant) == 0 {
		return Detection{}, false
	}

	best := relevant[0]
	for _, d := range relevant[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}

// SelectorFor returns the selector registered under name.
// An empty name means PolicyFirst.
func SelectorFor(name string) (Selector, error) {
	switch name {
	case "", PolicyFirst:
		return SelectFirst, nil
	case PolicyBest:
		return SelectBest, nil
	default:
		return nil, fmt.Errorf("unknown selection policy %q", name)
	}
}
