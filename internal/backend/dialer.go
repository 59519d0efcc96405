package backend

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yoockh/callbridge/internal/livecallpb"
)

// GRPCDialer opens LiveCall streams over one shared client connection.
type GRPCDialer struct {
	conn   *grpc.ClientConn
	client livecallpb.LiveCallClient
	health grpc_health_v1.HealthClient
}

// NewGRPCDialer creates a lazily connecting client for addr. Without
// options the connection is plaintext.
func NewGRPCDialer(addr string, opts ...grpc.DialOption) (*GRPCDialer, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", addr, err)
	}
	return &GRPCDialer{
		conn:   conn,
		client: livecallpb.NewLiveCallClient(conn),
		health: grpc_health_v1.NewHealthClient(conn),
	}, nil
}

func (d *GRPCDialer) Dial(ctx context.Context) (Stream, error) {
	return d.client.StreamCall(ctx)
}

// Check asks the backend health service whether LiveCall is serving.
func (d *GRPCDialer) Check(ctx context.Context) (string, error) {
	resp, err := d.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: livecallpb.ServiceName})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}

func (d *GRPCDialer) Close() error {
	return d.conn.Close()
}
