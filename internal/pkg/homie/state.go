package homie

// State is the lifecycle state published on $state.
type State string

const (
	StateInit         State = "init"
	StateReady        State = "ready"
	StateDisconnected State = "disconnected"
	StateSleeping     State = "sleeping"
	StateLost         State = "lost"
	StateAlert        State = "alert"
)

func (s State) String() string {
	return string(s)
}
