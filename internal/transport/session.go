package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/protocol"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// minPacket is the smallest packet size a client may negotiate.
const minPacket = 64

// Session is one client of a Hub.
type Session struct {
	protocol.BaseHandler

	hub    *Hub
	conn   Conn
	id     types.ConnID
	router *protocol.Router

	ready     atomic.Bool
	maxPacket atomic.Int32

	// ctx of the packet being handled; handlers run synchronously in Handle,
	// which is called from a single reader goroutine.
	ctx context.Context

	sendMu sync.Mutex
	buf    []byte
}

func newSession(h *Hub, conn Conn) *Session {
	s := &Session{hub: h, conn: conn, id: types.NewConnID()}
	s.maxPacket.Store(int32(h.maxPacket))
	s.router = protocol.NewRouter(s)
	return s
}

// ID returns the connection id.
func (s *Session) ID() types.ConnID { return s.id }

// Ready reports whether the handshake completed.
func (s *Session) Ready() bool { return s.ready.Load() }

// Close detaches the session from its hub.
func (s *Session) Close() {
	s.ready.Store(false)
	s.hub.detach(s)
}

// Handle processes one inbound packet. Protocol failures are reported to the
// client as ERROR messages; the returned error is non-nil only when the
// connection can no longer be used.
func (s *Session) Handle(ctx context.Context, packet []byte) error {
	if len(packet) > 0 {
		s.hub.metrics.Frame("in", wire.DecodeOpHeader(packet[0]).Op.String())
	}
	s.ctx = ctx
	defer func() { s.ctx = nil }()

	err := s.router.Dispatch(packet)
	if err == nil {
		return nil
	}
	var sendErr *sendError
	if errors.As(err, &sendErr) {
		return sendErr.err
	}
	s.hub.log.Debug().Err(err).Str("conn", string(s.id)).Msg("packet rejected")
	if len(packet) == 0 {
		return s.reject(ctx, err, 0, false)
	}
	return s.reject(ctx, err, wire.DecodeOpHeader(packet[0]).Op, true)
}

// sendError marks failures of the connection itself.
type sendError struct{ err error }

func (e *sendError) Error() string { return e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

func (s *Session) reject(ctx context.Context, cause error, op wire.OpCode, hasOp bool) error {
	msg := protocol.Error{Code: protocol.CodeFor(cause), Message: cause.Error(), RelatedOp: op, HasRelated: hasOp}
	var perr protocol.Error
	if errors.As(cause, &perr) {
		msg.Message = perr.Message
	}
	s.hub.metrics.Rejected(msg.Code.String())
	return s.send(ctx, msg)
}

type encoder interface {
	Encode(wb *wire.WriteBuffer) bool
}

// send encodes m into one packet and writes it to the connection.
func (s *Session) send(ctx context.Context, m encoder) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	n := int(s.maxPacket.Load())
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	wb := wire.NewWriteBuffer(s.buf[:n])
	if !m.Encode(wb) {
		return fmt.Errorf("encode %T: %w", m, types.ErrBufferOverflow)
	}
	return s.write(ctx, wb.Bytes())
}

func (s *Session) write(ctx context.Context, packet []byte) error {
	s.hub.metrics.Frame("out", wire.DecodeOpHeader(packet[0]).Op.String())
	if err := s.conn.Send(ctx, packet); err != nil {
		return &sendError{err: err}
	}
	return nil
}

func (s *Session) sendPackets(ctx context.Context, packets [][]byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for _, p := range packets {
		if err := s.write(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) sendUpdates(ctx context.Context, items []protocol.Update) error {
	packets, err := protocol.PackUpdates(items, int(s.maxPacket.Load()))
	if err != nil {
		return err
	}
	return s.sendPackets(ctx, packets)
}

// OnHello answers the handshake and synchronises schema and values.
func (s *Session) OnHello(m protocol.Hello) error {
	ctx := s.ctx
	if m.Version != types.ProtocolVersion {
		return protocol.Error{
			Code:       wire.ErrCodeProtocolVersionMismatch,
			Message:    fmt.Sprintf("server speaks version %d, client %d", types.ProtocolVersion, m.Version),
			RelatedOp:  wire.OpHello,
			HasRelated: true,
		}
	}
	n := s.hub.maxPacket
	if m.MaxPacket != 0 && int(m.MaxPacket) < n {
		n = max(int(m.MaxPacket), minPacket)
	}
	s.maxPacket.Store(int32(n))

	resp := protocol.HelloResponse{
		Version:   types.ProtocolVersion,
		MaxPacket: uint16(min(n, 0xFFFF)),
		SessionID: s.id.SessionToken(),
		Timestamp: s.hub.timestamp(),
	}
	if err := s.send(ctx, resp); err != nil {
		return err
	}

	var entries []protocol.SchemaEntry
	var values []protocol.Update
	err := s.hub.sys.Exec(ctx, func() error {
		var err error
		s.hub.sys.Registry().Each(func(p property.Property) bool {
			if p.Flags().Has(property.FlagHidden) {
				return true
			}
			var u protocol.Update
			if u, err = protocol.UpdateFor(p); err != nil {
				return false
			}
			entries = append(entries, protocol.SchemaEntryFor(p))
			values = append(values, u)
			return true
		})
		return err
	})
	if err != nil {
		return err
	}

	n = int(s.maxPacket.Load())
	schemaPackets, err := protocol.PackSchema(entries, n)
	if err != nil {
		return err
	}
	valuePackets, err := protocol.PackUpdates(values, n)
	if err != nil {
		return err
	}
	if err := s.sendPackets(ctx, append(schemaPackets, valuePackets...)); err != nil {
		return err
	}
	s.ready.Store(true)
	s.hub.log.Info().Str("conn", string(s.id)).Uint32("device", m.DeviceID).
		Int("properties", len(entries)).Msg("client ready")
	return nil
}

// OnPropertyUpdate applies remote writes. Each rejected item is reported with
// its own ERROR; accepted items are applied.
func (s *Session) OnPropertyUpdate(m protocol.PropertyUpdate) error {
	ctx := s.ctx
	if !s.Ready() {
		return errHandshake
	}
	var rejected []error
	err := s.hub.sys.Exec(ctx, func() error {
		for _, it := range m.Items {
			if err := s.apply(it); err != nil {
				rejected = append(rejected, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, r := range rejected {
		if err := s.reject(ctx, r, wire.OpPropertyUpdate, true); err != nil {
			return err
		}
	}
	return nil
}

var errHandshake = protocol.Error{Code: wire.ErrCodeInvalidOpcode, Message: "handshake required"}

// apply runs inside System.Exec.
func (s *Session) apply(it protocol.Update) error {
	p, ok := s.hub.sys.Registry().Get(it.ID)
	if !ok {
		return protocol.Error{Code: wire.ErrCodeInvalidPropertyID, Message: fmt.Sprintf("property %d", it.ID)}
	}
	if p.Flags().Has(property.FlagReadOnly) {
		return protocol.Error{Code: wire.ErrCodePermissionDenied, Message: p.Name() + " is readonly"}
	}
	if err := property.Unmarshal(p, it.Payload); err != nil {
		code := wire.ErrCodeTypeMismatch
		if errors.Is(err, types.ErrValidation) {
			code = wire.ErrCodeValidationFailed
		}
		return protocol.Error{Code: code, Message: err.Error()}
	}
	s.hub.origin[p.ID()] = s.id
	return nil
}

// OnRPCCall serves the resource functions.
func (s *Session) OnRPCCall(m protocol.RPCCall) error {
	ctx := s.ctx
	if !s.Ready() {
		return errHandshake
	}
	req, err := protocol.DecodeResourceRequest(m.FunctionID, m.Args)
	if errors.Is(err, protocol.ErrUnhandled) {
		return protocol.Error{Code: wire.ErrCodeInvalidFunctionID, Message: err.Error(), RelatedOp: wire.OpRPCCall, HasRelated: true}
	}
	if err != nil {
		return s.send(ctx, rpcFailure(m.RequestID, err))
	}

	var result []byte
	err = s.hub.sys.Exec(ctx, func() error {
		p, ok := s.hub.sys.Registry().Get(req.Property)
		if !ok {
			return fmt.Errorf("property %d: %w", req.Property, types.ErrNotFound)
		}
		r, ok := p.(*property.Resource)
		if !ok {
			return fmt.Errorf("%s is not a resource: %w", p.Name(), types.ErrTypeMismatch)
		}
		result, err = s.callResource(ctx, r, m.FunctionID, req)
		return err
	})
	if err != nil {
		return s.send(ctx, rpcFailure(m.RequestID, err))
	}
	return s.send(ctx, protocol.RPCResponse{RequestID: m.RequestID, Result: result})
}

func rpcFailure(requestID uint8, err error) protocol.RPCResponse {
	return protocol.RPCResponse{
		RequestID: requestID,
		Failed:    true,
		Code:      protocol.ResourceCodeFor(err),
		Message:   err.Error(),
	}
}

// callResource runs inside System.Exec.
func (s *Session) callResource(ctx context.Context, r *property.Resource, fn uint32, req protocol.ResourceRequest) ([]byte, error) {
	switch fn {
	case protocol.FuncResourceGet:
		s.hub.metrics.Resource("get")
		body, err := r.ReadBody(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		wb := wire.NewWriteBuffer(make([]byte, 8+r.HeaderSize()+types.MaxVarintBytes+len(body)))
		if !r.EncodeEntry(wb, req.ID, body) {
			return nil, fmt.Errorf("%s/%d: %w", r.Name(), req.ID, types.ErrNotFound)
		}
		return wb.Bytes(), nil

	case protocol.FuncResourcePut:
		id := req.ID
		if id == 0 {
			s.hub.metrics.Resource("create")
			var err error
			if id, err = r.CreateResource(ctx, req.Header, req.Body); err != nil {
				return nil, err
			}
		} else {
			s.hub.metrics.Resource("update")
			if _, ok := r.Header(id); !ok {
				return nil, fmt.Errorf("%s/%d: %w", r.Name(), id, types.ErrNotFound)
			}
			if len(req.Header) > 0 {
				if err := r.UpdateHeader(id, req.Header); err != nil {
					return nil, err
				}
			}
			if len(req.Body) > 0 {
				if err := r.UpdateBody(ctx, id, req.Body); err != nil {
					return nil, err
				}
			}
		}
		wb := wire.NewWriteBuffer(make([]byte, 4))
		wb.WriteU32(id)
		return wb.Bytes(), nil

	default:
		s.hub.metrics.Resource("delete")
		return nil, r.DeleteResource(ctx, req.ID)
	}
}

// OnPing echoes the payload.
func (s *Session) OnPing(m protocol.Ping) error {
	return s.send(s.ctx, protocol.Pong{Payload: m.Payload})
}

// OnError logs errors reported by the client.
func (s *Session) OnError(m protocol.Error) error {
	s.hub.log.Warn().Str("conn", string(s.id)).Str("code", m.Code.String()).Str("msg", m.Message).Msg("client error")
	return nil
}
