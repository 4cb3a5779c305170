package detection

// ConfidenceThreshold is the exclusive lower bound for a relevant detection.
const ConfidenceThreshold = 0.5

// Filter keeps the detections worth acting on.
type Filter struct {
	Taxonomy  Taxonomy
	Threshold float64
}

// DefaultFilter returns the filter over DefaultTaxonomy at ConfidenceThreshold.
func DefaultFilter() Filter {
	return Filter{
		Taxonomy:  DefaultTaxonomy(),
		Threshold: ConfidenceThreshold,
	}
}

// Relevant reports whether a single detection passes the filter.
func (f Filter) Relevant(d Detection) bool {
	return f.Taxonomy.Contains(d.Class) && d.Confidence > f.Threshold
}

// Apply returns the relevant subsequence of predictions, preserving order.
// The input is never modified.
func (f Filter) Apply(predictions []Detection) []Detection {
	relevant := make([]Detection, 0, len(predictions))
	for _, d := range predictions {
		if f.Relevant(d) {
			relevant = append(relevant, d)
		}
	}
	return relevant
}
