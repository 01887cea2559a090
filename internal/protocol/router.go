package protocol

import (
	"fmt"

	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// Handler receives decoded messages. Embed BaseHandler to accept only a
// subset.
type Handler interface {
	OnHello(Hello) error
	OnHelloResponse(HelloResponse) error
	OnPropertyUpdate(PropertyUpdate) error
	OnSchemaUpsert(SchemaUpsert) error
	OnSchemaDelete(SchemaDelete) error
	OnRPCCall(RPCCall) error
	OnRPCResponse(RPCResponse) error
	OnError(Error) error
	OnPing(Ping) error
	OnPong(Pong) error
}

// BaseHandler rejects every message with ErrUnhandled.
type BaseHandler struct{}

func (BaseHandler) OnHello(Hello) error                 { return ErrUnhandled }
func (BaseHandler) OnHelloResponse(HelloResponse) error { return ErrUnhandled }
func (BaseHandler) OnPropertyUpdate(PropertyUpdate) error {
	return ErrUnhandled
}
func (BaseHandler) OnSchemaUpsert(SchemaUpsert) error { return ErrUnhandled }
func (BaseHandler) OnSchemaDelete(SchemaDelete) error { return ErrUnhandled }
func (BaseHandler) OnRPCCall(RPCCall) error           { return ErrUnhandled }
func (BaseHandler) OnRPCResponse(RPCResponse) error   { return ErrUnhandled }
func (BaseHandler) OnError(Error) error               { return nil }
func (BaseHandler) OnPing(Ping) error                 { return ErrUnhandled }
func (BaseHandler) OnPong(Pong) error                 { return nil }

// Router decodes one packet at a time and dispatches it to a Handler.
type Router struct {
	h Handler
}

func NewRouter(h Handler) *Router {
	return &Router{h: h}
}

// Dispatch decodes data as exactly one message. Decode failures are returned
// without calling the handler; otherwise the handler's error is returned.
func (r *Router) Dispatch(data []byte) error {
	if len(data) == 0 {
		return types.ErrBufferUnderflow
	}
	rb := wire.NewReadBuffer(data)
	h, err := rb.ReadHeader()
	if err != nil {
		return err
	}

	var call func() error
	switch h.Op {
	case wire.OpHello:
		if h.Flags&wire.FlagIsResponse != 0 {
			m, derr := DecodeHelloResponse(rb)
			err, call = derr, func() error { return r.h.OnHelloResponse(m) }
		} else {
			m, derr := DecodeHello(rb)
			err, call = derr, func() error { return r.h.OnHello(m) }
		}
	case wire.OpPropertyUpdate, wire.OpPropertyUpdateShort:
		m, derr := DecodePropertyUpdate(rb, h)
		err, call = derr, func() error { return r.h.OnPropertyUpdate(m) }
	case wire.OpSchemaUpsert:
		m, derr := DecodeSchemaUpsert(rb, h)
		err, call = derr, func() error { return r.h.OnSchemaUpsert(m) }
	case wire.OpSchemaDelete:
		m, derr := DecodeSchemaDelete(rb, h)
		err, call = derr, func() error { return r.h.OnSchemaDelete(m) }
	case wire.OpRPCCall:
		m, derr := DecodeRPCCall(rb)
		err, call = derr, func() error { return r.h.OnRPCCall(m) }
	case wire.OpRPCResponse:
		m, derr := DecodeRPCResponse(rb, h)
		err, call = derr, func() error { return r.h.OnRPCResponse(m) }
	case wire.OpError:
		m, derr := DecodeError(rb, h)
		err, call = derr, func() error { return r.h.OnError(m) }
	case wire.OpPing:
		p, derr := decodePayload(rb)
		err, call = derr, func() error { return r.h.OnPing(Ping{Payload: p}) }
	case wire.OpPong:
		p, derr := decodePayload(rb)
		err, call = derr, func() error { return r.h.OnPong(Pong{Payload: p}) }
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOpcode, h.Op)
	}

	if err != nil {
		return fmt.Errorf("decode %s: %w", h.Op, err)
	}
	if rb.Remaining() != 0 {
		return fmt.Errorf("decode %s: %w (%d)", h.Op, ErrTrailingBytes, rb.Remaining())
	}
	return call()
}
