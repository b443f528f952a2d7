//go:generate go run go.uber.org/mock/mockgen -source=sink.go -destination=../../mocks/mock_sink.go -package=mocks
package session

// Sink receives the events of a Session.  Line is called from the
// session's receive goroutine, in arrival order.  ConnectFailed is
// called on the goroutine that called Connect.  Each terminal event
// (ConnectFailed for an attempt, Disconnected for a connected period)
// is delivered exactly once.
type Sink interface {
	// Line delivers one received line without its terminator.
	Line(text string)

	// ConnectFailed reports that a Connect attempt did not succeed.
	ConnectFailed(err error)

	// Disconnected reports the end of a connected period.  err is nil
	// after an explicit Close or a clean close by the relay.
	Disconnected(err error)
}
