package exam

// State is the engine's position in an attempt.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateAwaiting
	StateReview
	StateSubmitting
	StateSubmitFailed
	StateDone
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateAwaiting:
		return "awaiting"
	case StateReview:
		return "review"
	case StateSubmitting:
		return "submitting"
	case StateSubmitFailed:
		return "submit_failed"
	case StateDone:
		return "done"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind names an engine event.
type EventKind string

const (
	EventPlaying        EventKind = "playing"
	EventPlayed         EventKind = "played"
	EventAwaiting       EventKind = "awaiting"
	EventPlaybackFailed EventKind = "playback_failed"
	EventCaptured       EventKind = "captured"
	EventReview         EventKind = "review"
	EventSelected       EventKind = "selected"
	EventSubmitting     EventKind = "submitting"
	EventSubmitFailed   EventKind = "submit_failed"
	EventDone           EventKind = "done"
)

// Event reports a transition. Index is the sentence position, not its number.
type Event struct {
	Kind    EventKind
	Index   int
	Text    string
	Trigger string
	Err     error
}

// Snapshot is a copy of the engine state. Answers are keyed by sentence position.
type Snapshot struct {
	State          State
	Index          int
	Total          int
	Answers        map[int]string
	PlaybackFailed bool
	Err            error
	Result         *Result
}
