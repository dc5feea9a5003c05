package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Op     string         `json:"op"`
	Args   map[string]any `json:"args,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Final state captured after the last step.
	Pending    []string                  `json:"pending"`
	Dispatched []string                  `json:"dispatched"`
	Signals    []string                  `json:"signals"`
	Items      map[string]map[string]any `json:"items,omitempty"`
	Partitions map[string]int            `json:"partitions,omitempty"`

	seq int64
}

// NewResult creates a passing result with no events.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Errors:     []string{},
		Pending:    []string{},
		Dispatched: []string{},
		Signals:    []string{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a trace event with the next sequence number.
func (r *Result) AddEvent(op string, args, result map[string]any) {
	r.seq++
	r.Trace = append(r.Trace, TraceEvent{Seq: r.seq, Op: op, Args: args, Result: result})
}
