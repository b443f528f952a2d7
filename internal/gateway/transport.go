package gateway

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/util"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Interval between pings.  Pings keep idle sockets open through
	// proxies; they are not a liveness check.
	pingPeriod = 54 * time.Second
)

// wsTransport carries one line per WebSocket text message so a browser
// can join the relay as an ordinary participant.
type wsTransport struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	done        chan struct{}
	once        sync.Once
}

func newWSTransport(conn *websocket.Conn, maxLine int, readTimeout time.Duration) *wsTransport {
	if maxLine > 0 {
		conn.SetReadLimit(int64(maxLine))
	}
	t := &wsTransport{conn: conn, readTimeout: readTimeout, done: make(chan struct{})}
	go t.pingLoop()
	return t
}

// ReadLine returns the next message as a line.  Embedded newlines
// become spaces so one message is always exactly one line.
func (t *wsTransport) ReadLine() (string, error) {
	if t.readTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)) //nolint:errcheck
	}
	_, msg, err := t.conn.ReadMessage()
	if err != nil {
		switch {
		case errors.Is(err, websocket.ErrReadLimit):
			return "", util.ErrLineTooLong
		case websocket.IsCloseError(err, websocket.CloseNormalClosure,
			websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
			return "", io.EOF
		}
		return "", err
	}
	line := strings.TrimRight(string(msg), "\r\n")
	return strings.ReplaceAll(line, "\n", " "), nil
}

// WriteLine sends line as one text message.
func (t *wsTransport) WriteLine(line string) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// Close sends a close frame and drops the socket.
func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)) //nolint:errcheck
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) RemoteAddr() string {
	return "ws:" + t.conn.RemoteAddr().String()
}

// pingLoop uses WriteControl, which may run alongside WriteLine.
func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
