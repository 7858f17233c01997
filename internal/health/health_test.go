package health

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakePinger struct {
	down atomic.Bool
}

func (p *fakePinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("store closed")
	}
	return nil
}

func dial(t *testing.T, srv *Server) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestHealthServing(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakePinger{})
	client := dial(t, srv)
	srv.Probe(context.Background())

	for _, service := range []string{"", ServiceName} {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus(), "service %q", service)
	}
}

func TestHealthFollowsStore(t *testing.T) {
	t.Parallel()

	p := &fakePinger{}
	srv := NewServer(p)
	client := dial(t, srv)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, srv.Probe(context.Background()))

	p.down.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, srv.Probe(context.Background()))

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestHealthStartProbesImmediately(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakePinger{})
	client := dial(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Start(ctx, DefaultProbeInterval)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
