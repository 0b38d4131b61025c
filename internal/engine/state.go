package engine

// state is an episode's lifecycle state (spec.md §4.1's state machine:
// Started -> Active -> Completed, terminal).
type state string

const (
	stateStarted   state = "started"
	stateActive    state = "active"
	stateCompleted state = "completed"
)

// canAcceptStep reports whether a log_step call is valid from s.
func (s state) canAcceptStep() bool {
	return s == stateStarted || s == stateActive
}

// canComplete reports whether complete_episode is valid from s.
func (s state) canComplete() bool {
	return s == stateStarted || s == stateActive
}
