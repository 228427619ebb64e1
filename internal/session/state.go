package session

// State is the position of a user inside one of the onboarding dialogues.
type State int

const (
	Idle State = iota
	AwaitingPhone
	AwaitingConfirmation
	AwaitingOldPhone
	AwaitingNewPhone
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingPhone:
		return "awaiting_phone"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case AwaitingOldPhone:
		return "awaiting_old_phone"
	case AwaitingNewPhone:
		return "awaiting_new_phone"
	default:
		return "unknown"
	}
}

// AdminFlow reports whether the state belongs to the administrator
// phone-change dialogue, the only place where cancellation is accepted.
func (s State) AdminFlow() bool {
	return s == AwaitingOldPhone || s == AwaitingNewPhone
}

// Payload is the transient data of the current dialogue.
type Payload struct {
	// Phone is the candidate number awaiting confirmation.
	Phone string
	// OldPhone and TargetUserID identify the client whose number an
	// administrator is changing.
	OldPhone     string
	TargetUserID int64
}

func (p Payload) Empty() bool { return p == Payload{} }

// Session is a snapshot of one user's dialogue.
type Session struct {
	State   State
	Payload Payload
}
