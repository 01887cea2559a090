package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/solatis/microproto/internal/core/storage"
	"github.com/solatis/microproto/internal/device"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/protocol"
	"github.com/solatis/microproto/internal/system"
	"github.com/solatis/microproto/internal/transport"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

type fixture struct {
	client PropertyServiceClient
	sys    *system.System
	props  *device.Props
	hub    *transport.Hub
}

func newFixture(t *testing.T, hubOpts ...transport.Option) *fixture {
	t.Helper()
	props := device.NewProps(storage.NewMemoryBlobs())
	reg := property.NewRegistry()
	require.NoError(t, props.Register(reg))
	reg.MustRegister(property.New("wifiPass", "", property.Hidden()))

	sys := system.New(reg, system.NewStorage(storage.NewMemoryKV()))
	sys.Init(context.Background())
	hub := transport.NewHub(sys, hubOpts...)

	svc, err := NewPropertyService(hub, zerolog.Nop())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterPropertyServiceServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &fixture{client: NewPropertyServiceClient(conn), sys: sys, props: props, hub: hub}
}

func setRequest(t *testing.T, name string, value any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(map[string]any{"name": name, "value": value})
	require.NoError(t, err)
	return s
}

func TestNewPropertyServiceRequiresHub(t *testing.T) {
	_, err := NewPropertyService(nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestGetProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		prop string
		want string
		code codes.Code
	}{
		{name: "scalar", prop: "brightness", want: "128"},
		{name: "object", prop: "segment", want: `{"start":0,"length":300}`},
		{name: "unknown", prop: "nope", code: codes.NotFound},
		{name: "hidden", prop: "wifiPass", code: codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.client.GetProperty(ctx, wrapperspb.String(tt.prop))
			require.Equal(t, tt.code, status.Code(err), "error: %v", err)
			if tt.code == codes.OK {
				assert.JSONEq(t, tt.want, got.GetValue())
			}
		})
	}
}

func TestSetProperty(t *testing.T) {
	tests := []struct {
		name  string
		prop  string
		value any
		want  string
		code  codes.Code
	}{
		{name: "scalar", prop: "brightness", value: 200, want: "200"},
		{name: "numeric string", prop: "speed", value: "7", want: "7"},
		{name: "object", prop: "segment", value: map[string]any{"start": 5, "length": 10}, want: `{"start":5,"length":10}`},
		{name: "readonly", prop: "status", value: map[string]any{"ok": 1}, code: codes.PermissionDenied},
		{name: "constraint violation", prop: "ledLimit", value: 0, code: codes.FailedPrecondition},
		{name: "overflow", prop: "brightness", value: 300, code: codes.InvalidArgument},
		{name: "hidden", prop: "wifiPass", value: "x", code: codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			got, err := f.client.SetProperty(context.Background(), setRequest(t, tt.prop, tt.value))
			require.Equal(t, tt.code, status.Code(err), "error: %v", err)
			if tt.code == codes.OK {
				assert.JSONEq(t, tt.want, got.GetValue())
			}
		})
	}

	t.Run("missing value", func(t *testing.T) {
		f := newFixture(t)
		req, err := structpb.NewStruct(map[string]any{"name": "brightness"})
		require.NoError(t, err)
		_, err = f.client.SetProperty(context.Background(), req)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func packet(t *testing.T, m interface{ Encode(*wire.WriteBuffer) bool }) *wrapperspb.BytesValue {
	t.Helper()
	wb := wire.NewWriteBuffer(make([]byte, types.DefaultMaxPacket))
	require.True(t, m.Encode(wb))
	return wrapperspb.Bytes(wb.Bytes())
}

func recvOp(t *testing.T, stream ConnectClient) wire.OpCode {
	t.Helper()
	msg, err := stream.Recv()
	require.NoError(t, err)
	require.NotEmpty(t, msg.GetValue())
	return wire.DecodeOpHeader(msg.GetValue()[0]).Op
}

func TestConnect(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := f.client.Connect(ctx)
	require.NoError(t, err)

	hello := protocol.Hello{Version: types.ProtocolVersion, MaxPacket: types.DefaultMaxPacket, DeviceID: 3}
	require.NoError(t, stream.Send(packet(t, hello)))

	var ops []wire.OpCode
	for range 3 {
		ops = append(ops, recvOp(t, stream))
	}
	assert.Equal(t, []wire.OpCode{wire.OpHello, wire.OpSchemaUpsert, wire.OpPropertyUpdate}, ops)
	assert.Equal(t, 1, f.hub.Sessions())

	speed, ok := f.sys.Registry().Lookup("speed")
	require.True(t, ok)
	write := protocol.PropertyUpdate{Items: []protocol.Update{{ID: speed.ID(), Payload: []byte{9}}}}
	require.NoError(t, stream.Send(packet(t, write)))

	require.NoError(t, stream.Send(packet(t, protocol.Ping{Payload: 5})))
	assert.Equal(t, wire.OpPong, recvOp(t, stream))

	// the pong is sent after the preceding write was applied
	var got uint8
	require.NoError(t, f.sys.Exec(ctx, func() error {
		got = f.props.Speed.Get()
		return nil
	}))
	assert.Equal(t, uint8(9), got)

	require.NoError(t, stream.CloseSend())
	assert.Eventually(t, func() bool { return f.hub.Sessions() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestConnectRefusesExtraClients(t *testing.T) {
	f := newFixture(t, transport.WithMaxClients(1))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := f.client.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Send(packet(t, protocol.Hello{Version: types.ProtocolVersion, MaxPacket: types.DefaultMaxPacket})))
	recvOp(t, first)

	second, err := f.client.Connect(ctx)
	require.NoError(t, err)
	_, err = second.Recv()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err), "error: %v", err)
}
