package session

// Target is the control a row interaction landed on.
type Target string

const (
	// TargetRow is a click on the row body.
	TargetRow Target = "row"
	// TargetAccount is a click on the account id control inside a row.
	TargetAccount Target = "account"
	// TargetClose is a click on the close button of an active position.
	TargetClose Target = "close"
	// TargetDelete is a click on the delete button of a row.
	TargetDelete Target = "delete"
)

// Valid reports whether t is a known target.
func (t Target) Valid() bool {
	switch t {
	case TargetRow, TargetAccount, TargetClose, TargetDelete:
		return true
	}
	return false
}

// Event is one row interaction. Nested controls get the event first and
// consume it; the row handler only sees events nobody consumed.
type Event struct {
	Table    string
	RecordID string
	Target   Target

	handled bool
}

// Consume marks the event handled so outer handlers skip it.
func (e *Event) Consume() { e.handled = true }

// Handled reports whether a handler consumed the event.
func (e *Event) Handled() bool { return e.handled }

// OutcomeKind says which view an interaction opened.
type OutcomeKind string

const (
	OutcomeDetails OutcomeKind = "details"
	OutcomeAccount OutcomeKind = "account"
	OutcomeClose   OutcomeKind = "close"
	OutcomeDeleted OutcomeKind = "deleted"
	OutcomeRecord  OutcomeKind = "record"
)

// Outcome is the result of dispatching an Event.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Table  string      `json:"table"`
	ID     string      `json:"id"`
	Result any         `json:"result,omitempty"`
}
