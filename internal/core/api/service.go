// Package api exposes the property system over gRPC: a bidirectional
// stream carrying binary protocol packets and unary JSON accessors.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/core/auth"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/system"
	"github.com/solatis/microproto/internal/transport"
	"github.com/solatis/microproto/internal/types"
)

// PropertyService implements PropertyServiceServer on top of a transport
// hub. Thin orchestration layer: sessions own the protocol, the system owns
// the values.
type PropertyService struct {
	UnimplementedPropertyServiceServer
	hub *transport.Hub
	sys *system.System
	log zerolog.Logger
}

// NewPropertyService creates the service.
func NewPropertyService(hub *transport.Hub, log zerolog.Logger) (*PropertyService, error) {
	if hub == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}
	return &PropertyService{hub: hub, sys: hub.System(), log: log}, nil
}

// Connect attaches the stream to the hub as one client and feeds every
// received message to its session until the client half-closes.
func (s *PropertyService) Connect(stream ConnectStream) error {
	ctx := stream.Context()
	sess, err := s.hub.Attach(&streamConn{stream: stream})
	if err != nil {
		return statusFor(err)
	}
	defer sess.Close()

	log := s.log.With().Str("conn", string(sess.ID())).Logger()
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		log = log.With().Str("api_key", p.Name).Logger()
	}
	log.Debug().Msg("grpc client connected")

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug().Msg("grpc client disconnected")
			return nil
		}
		if err != nil {
			return err
		}
		if err := sess.Handle(ctx, msg.GetValue()); err != nil {
			log.Debug().Err(err).Msg("grpc connection failed")
			return status.Error(codes.Unavailable, err.Error())
		}
	}
}

// GetProperty returns the named property's value as JSON.
func (s *PropertyService) GetProperty(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	var out []byte
	err := s.sys.Exec(ctx, func() error {
		p, err := s.visible(in.GetValue())
		if err != nil {
			return err
		}
		out, err = valueJSON(p)
		return err
	})
	if err != nil {
		return nil, statusFor(err)
	}
	return wrapperspb.String(string(out)), nil
}

// SetProperty writes a property from {"name": ..., "value": ...}.
func (s *PropertyService) SetProperty(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	fields := in.GetFields()
	name := fields["name"].GetStringValue()
	value, ok := fields["value"]
	if name == "" || !ok {
		return nil, status.Error(codes.InvalidArgument, `request needs "name" and "value"`)
	}

	var out []byte
	err := s.sys.Exec(ctx, func() error {
		p, err := s.visible(name)
		if err != nil {
			return err
		}
		if p.Flags().Has(property.FlagReadOnly) {
			return fmt.Errorf("%s: %w", name, types.ErrReadOnly)
		}
		if err := p.SetGeneric(value.AsInterface()); err != nil {
			return err
		}
		out, err = valueJSON(p)
		return err
	})
	if err != nil {
		return nil, statusFor(err)
	}
	return wrapperspb.String(string(out)), nil
}

func (s *PropertyService) visible(name string) (property.Property, error) {
	p, ok := s.sys.Registry().Lookup(name)
	if !ok || p.Flags().Has(property.FlagHidden) {
		return nil, fmt.Errorf("property %q: %w", name, types.ErrNotFound)
	}
	return p, nil
}

func valueJSON(p property.Property) ([]byte, error) {
	v, err := property.Generic(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(codec.ToJSON(v))
}

// streamConn adapts a Connect stream to transport.Conn. The session
// serialises calls to Send.
type streamConn struct {
	stream ConnectStream
}

func (c *streamConn) Send(ctx context.Context, packet []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.stream.Send(wrapperspb.Bytes(packet))
}
