package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/ledgersync/internal/logging"
	"github.com/dmitrijs2005/ledgersync/internal/server/models"
	"github.com/dmitrijs2005/ledgersync/internal/syncapi"
	"google.golang.org/grpc"
)

// recordService is the part of services.RecordService the handlers use.
type recordService interface {
	Create(ctx context.Context, userID, recordType, id string, fields map[string]any) (*models.Record, error)
	Update(ctx context.Context, userID, recordType, id string, patch map[string]any) (*models.Record, error)
	Delete(ctx context.Context, userID, recordType, id string) error
	List(ctx context.Context, userID, recordType string, since int64) ([]*models.Record, error)
}

type GRPCServer struct {
	address   string
	records   recordService
	logger    logging.Logger
	jwtSecret []byte
}

var _ syncapi.SyncServiceServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, rs recordService, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		records:   rs,
		jwtSecret: []byte(secretKey),
	}, nil
}

// Register attaches the sync service and its interceptor to a new grpc.Server.
func (s *GRPCServer) Register(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	srv := grpc.NewServer(opts...)
	syncapi.RegisterSyncServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.Register()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
