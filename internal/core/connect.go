package core

import (
	"context"

	"chatrelay/internal/capability"
	"chatrelay/internal/session"
	"chatrelay/internal/transport"
	"chatrelay/util"
)

// ConnectMode dials the relay and runs a capability on the resulting
// session, the default client mode.
type ConnectMode struct {
	Dialer     transport.Dialer
	Capability capability.Capability
	Host       string
	Port       int
	Logger     *util.Logger
}

// Run connects, hands the session to the capability and closes the
// dialer when the capability returns.  A connection failure has already
// been reported to the capability when Run returns it.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	sess := session.New(m.Dialer, m.Capability, m.Logger)
	if err := sess.Connect(ctx, m.Host, m.Port); err != nil {
		return err
	}
	return m.Capability.Handle(ctx, sess)
}
