package harness

// TraceStep is the recorded outcome of one scenario step.
type TraceStep struct {
	Step   int            `json:"step"`
	Op     string         `json:"op"`
	Result map[string]any `json:"result"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceStep `json:"trace"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step outcome to the trace.
func (r *Result) AddStep(op string, result map[string]any) {
	r.Trace = append(r.Trace, TraceStep{Step: len(r.Trace) + 1, Op: op, Result: result})
}
