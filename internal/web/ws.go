package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solatis/microproto/internal/device"
)

// textQueue is the number of control lines buffered per text client. Lines
// beyond it are dropped for that client.
const textQueue = 32

// serveText runs the text control channel. Controller events are written as
// "select <name>", "add <name>", "delete <name>" and "limitLeds <n>"; inbound
// lines are executed with Controller.HandleCommand.
func (s *Server) serveText(w http.ResponseWriter, r *http.Request, _ Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	out := make(chan string, textQueue)
	cancel := s.ctrl.Subscribe(func(e device.Event) {
		select {
		case out <- e.String():
		default:
			s.log.Warn().Str("event", e.String()).Msg("text client too slow, dropping event")
		}
	})
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go s.textWriter(conn, out, done)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("text client connected")
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("text client disconnected")
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := s.ctrl.HandleCommand(r.Context(), string(data)); err != nil {
			s.log.Debug().Err(err).Str("line", string(data)).Msg("command rejected")
		}
	}
}

// textWriter owns all writes to conn.
func (s *Server) textWriter(conn *websocket.Conn, out <-chan string, done <-chan struct{}) {
	for {
		select {
		case line := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				s.log.Debug().Err(err).Msg("text write failed")
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// serveProto runs the binary protocol on one WebSocket. Each binary message
// is one packet.
func (s *Server) serveProto(w http.ResponseWriter, r *http.Request, _ Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sess, err := s.hub.Attach(&wsConn{conn: conn, timeout: s.writeTimeout})
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("protocol client refused")
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		return
	}
	defer sess.Close()

	conn.SetReadLimit(int64(s.maxPacket))
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug().Err(err).Str("conn", string(sess.ID())).Msg("protocol client disconnected")
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if err := sess.Handle(r.Context(), data); err != nil {
			s.log.Debug().Err(err).Str("conn", string(sess.ID())).Msg("protocol connection failed")
			return
		}
	}
}

// wsConn adapts a WebSocket to transport.Conn. The session serialises
// calls to Send.
type wsConn struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (c *wsConn) Send(ctx context.Context, packet []byte) error {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, packet)
}
