package server

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/solatis/microproto/internal/core/api"
	"github.com/solatis/microproto/internal/core/auth"
	"github.com/solatis/microproto/internal/core/config"
	"github.com/solatis/microproto/internal/core/db"
	"github.com/solatis/microproto/internal/core/storage"
	"github.com/solatis/microproto/internal/device"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/protocol"
	"github.com/solatis/microproto/internal/system"
	"github.com/solatis/microproto/internal/transport"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

const secretID = "0190c0c0c0c0700080000000000000cc"

func newService(t *testing.T) *api.PropertyService {
	t.Helper()
	props := device.NewProps(storage.NewMemoryBlobs())
	reg := property.NewRegistry()
	require.NoError(t, props.Register(reg))
	sys := system.New(reg, system.NewStorage(storage.NewMemoryKV()))
	sys.Init(context.Background())
	svc, err := api.NewPropertyService(transport.NewHub(sys), zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func newAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.MigrateUp(context.Background(), conn))
	q, err := db.LoadQueries(conn)
	require.NoError(t, err)
	return auth.NewAuthenticator(map[string][]byte{secretID: []byte(strings.Repeat("s", 32))}, q)
}

func serve(t *testing.T, authenticator *auth.Authenticator) (*GRPCServer, *grpc.ClientConn) {
	t.Helper()
	srv, err := NewGRPCServer(config.Default().Server, newService(t), authenticator)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { srv.server.Stop() })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func TestNewGRPCServerRequiresService(t *testing.T) {
	_, err := NewGRPCServer(config.Default().Server, nil, nil)
	assert.Error(t, err)
}

func TestAuthenticatedServer(t *testing.T) {
	authenticator := newAuthenticator(t)
	key, _, err := authenticator.CreateKey(context.Background(), "test", "")
	require.NoError(t, err)

	_, conn := serve(t, authenticator)
	client := api.NewPropertyServiceClient(conn)
	ctx := context.Background()

	_, err = client.GetProperty(ctx, wrapperspb.String("brightness"))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	authed := metadata.AppendToOutgoingContext(ctx, auth.HeaderAPIKey, key)
	got, err := client.GetProperty(authed, wrapperspb.String("brightness"))
	require.NoError(t, err)
	assert.Equal(t, "128", got.GetValue())

	stream, err := client.Connect(ctx)
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	// health checks need no key
	health := grpc_health_v1.NewHealthClient(conn)
	resp, err := health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestUnauthenticatedServer(t *testing.T) {
	_, conn := serve(t, nil)
	got, err := api.NewPropertyServiceClient(conn).GetProperty(context.Background(), wrapperspb.String("speed"))
	require.NoError(t, err)
	assert.Equal(t, "50", got.GetValue())
}

func TestShutdown(t *testing.T) {
	srv, conn := serve(t, nil)
	health := grpc_health_v1.NewHealthClient(conn)
	_, err := health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	after, cancelAfter := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelAfter()
	_, err = health.Check(after, &grpc_health_v1.HealthCheckRequest{})
	assert.Error(t, err)
}

func TestShutdownForcedByContext(t *testing.T) {
	srv, conn := serve(t, nil)

	// an open stream keeps GracefulStop waiting
	stream, err := api.NewPropertyServiceClient(conn).Connect(context.Background())
	require.NoError(t, err)
	wb := wire.NewWriteBuffer(make([]byte, types.DefaultMaxPacket))
	require.True(t, protocol.Hello{Version: types.ProtocolVersion, MaxPacket: types.DefaultMaxPacket}.Encode(wb))
	require.NoError(t, stream.Send(wrapperspb.Bytes(wb.Bytes())))
	_, err = stream.Recv()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Error(t, srv.Shutdown(ctx))
}
