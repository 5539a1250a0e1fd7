package ipc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/KevinKickass/OpenSpiCore/internal/spi"
)

const (
	busServiceName    = "openspicore.spi.Bus"
	busTransferMethod = "/" + busServiceName + "/Transfer"
)

// BusServer executes one packed command per call and returns the receive
// payload.
type BusServer interface {
	Transfer(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

func busTransferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BusServer).Transfer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: busTransferMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BusServer).Transfer(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var busServiceDesc = grpc.ServiceDesc{
	ServiceName: busServiceName,
	HandlerType: (*BusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transfer", Handler: busTransferHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "openspicore/spi/bus.proto",
}

func RegisterBusServer(s grpc.ServiceRegistrar, srv BusServer) {
	s.RegisterService(&busServiceDesc, srv)
}

// BusService exposes a bus master over gRPC. Calls are serialised.
type BusService struct {
	master spi.Transport
	logger *zap.Logger
	mu     sync.Mutex
}

// NewBusService expects an initialised master.
func NewBusService(master spi.Transport, logger *zap.Logger) *BusService {
	return &BusService{master: master, logger: logger}
}

func (s *BusService) Transfer(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	cs, tx, err := UnpackCommand(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.mu.Lock()
	rx, err := s.master.Transfer(cs, tx)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Bus transfer failed",
			zap.Uint8("chip_select", cs),
			zap.Error(err))
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return wrapperspb.Bytes(rx), nil
}

// RemoteBus is a spi.Transport backed by a BusServer.
type RemoteBus struct {
	address string
	timeout time.Duration
	opts    []grpc.DialOption

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// DialBus prepares a remote bus; the connection is created by Init.
func DialBus(address string, timeout time.Duration, opts ...grpc.DialOption) *RemoteBus {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &RemoteBus{
		address: address,
		timeout: timeout,
		opts:    opts,
	}
}

func (b *RemoteBus) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}
	conn, err := grpc.NewClient(b.address, b.opts...)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	b.conn = conn
	return nil
}

func (b *RemoteBus) Transfer(cs uint8, tx []byte) ([]byte, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	out := new(wrapperspb.BytesValue)
	if err := conn.Invoke(ctx, busTransferMethod, wrapperspb.Bytes(PackCommand(cs, tx)), out); err != nil {
		return nil, fmt.Errorf("remote transfer: %w", err)
	}
	rx := out.GetValue()
	if len(rx) != len(tx) {
		return nil, fmt.Errorf("response length mismatch: expected %d, got %d", len(tx), len(rx))
	}
	return rx, nil
}

func (b *RemoteBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
