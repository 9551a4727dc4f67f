package sync

// Result is the outcome of one entity sync for one scope. Expected failures
// (unreachable object, missing permission, exhausted retries) land in Error;
// they are values, not raised errors.
type Result struct {
	Saved       int    `json:"saved"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	MissingRefs int    `json:"missing_refs,omitempty"`
	Error       string `json:"error,omitempty"`
}

// OK reports whether the sync completed without a scope-level error.
func (r Result) OK() bool {
	return r.Error == ""
}

// Add merges another result's counters into r.
func (r *Result) Add(other Result) {
	r.Saved += other.Saved
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.MissingRefs += other.MissingRefs
	if r.Error == "" {
		r.Error = other.Error
	}
}

// Summary aggregates scope jobs across a fan-out run.
type Summary struct {
	OK     int `json:"ok"`
	Failed int `json:"failed"`
}
