package pipeline

// Record outcomes reported to an Observer.
const (
	OutcomeValid      = "valid"
	OutcomeInvalid    = "invalid"
	OutcomeStructural = "structural_error"
)

// Observer receives counts as records are processed. Implementations
// must be safe for concurrent use.
type Observer interface {
	RecordProcessed(outcome string, rows int)
	Violation(kind, field string)
	Issue(code string)
}

type nopObserver struct{}

func (nopObserver) RecordProcessed(string, int) {}
func (nopObserver) Violation(string, string)    {}
func (nopObserver) Issue(string)                {}
