package homie

// Recorder observes device activity, typically to export metrics.
type Recorder interface {
	StateChanged(state State)
	ConnectAttempt(ok bool)
	Published(retained bool)
	PublishFailed()
	SetReceived()
}

type nopRecorder struct{}

func (nopRecorder) StateChanged(State)  {}
func (nopRecorder) ConnectAttempt(bool) {}
func (nopRecorder) Published(bool)      {}
func (nopRecorder) PublishFailed()      {}
func (nopRecorder) SetReceived()        {}
