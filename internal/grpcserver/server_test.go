package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startTestServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()

	server, err := New("127.0.0.1:0")
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		ctx,
		server.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.GracefulStop()
		require.NoError(t, <-serveErr)
	})

	return server, healthpb.NewHealthClient(conn)
}

func TestHealth(t *testing.T) {
	server, client := startTestServer(t)
	ctx := context.Background()

	type tTestCase struct {
		name    string
		serving bool
		want    healthpb.HealthCheckResponse_ServingStatus
	}
	testCases := []tTestCase{
		{name: "initially not serving", serving: false, want: healthpb.HealthCheckResponse_NOT_SERVING},
		{name: "serving", serving: true, want: healthpb.HealthCheckResponse_SERVING},
		{name: "back to not serving", serving: false, want: healthpb.HealthCheckResponse_NOT_SERVING},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server.SetServing(testCase.serving)

			for _, service := range []string{"", ServiceName} {
				resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
				require.NoError(t, err)
				assert.Equal(t, testCase.want, resp.GetStatus())
			}
		})
	}
}

func TestHealth_UnknownService(t *testing.T) {
	_, client := startTestServer(t)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})
	require.Error(t, err)
}

func TestClose_WithoutServe(t *testing.T) {
	server, err := New("127.0.0.1:0")
	require.NoError(t, err)
	addr := server.Addr().String()

	require.NoError(t, server.Close())

	lis, err := net.Listen("tcp", addr)
	require.NoError(t, err, "the address should be released")
	require.NoError(t, lis.Close())

	require.NoError(t, server.Close())
}
