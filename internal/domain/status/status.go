package status

// Status is the processing-state vocabulary shared by image records and
// alt-text results. The two are tracked independently and may transiently
// disagree (a record can sit at pending while its result row is processing).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further automatic transition is expected
// without an external re-trigger.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsRetryable reports whether the batch scanner may pick the state up again.
// A failed result row is retryable by design: re-upload or the scanner can
// drive a fresh attempt over it.
func (s Status) IsRetryable() bool {
	return s == StatusPending || s == StatusFailed
}

// Valid reports whether s is part of the vocabulary.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
