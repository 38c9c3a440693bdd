package event

// Type identifies the type of domain event
type Type string

const (
	TypeJobQueued     Type = "job.queued"
	TypeJobStarted    Type = "job.started"
	TypeJobCompleted  Type = "job.completed"
	TypeJobFailed     Type = "job.failed"
	TypeJobCanceled   Type = "job.canceled"
	TypeReceiptEdited Type = "receipt.edited"
	TypeExportCreated Type = "export.created"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeJobQueued,
		TypeJobStarted,
		TypeJobCompleted,
		TypeJobFailed,
		TypeJobCanceled,
		TypeReceiptEdited,
		TypeExportCreated:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the event marks the end of a job run
func (t Type) IsTerminal() bool {
	return t == TypeJobCompleted || t == TypeJobFailed || t == TypeJobCanceled
}
