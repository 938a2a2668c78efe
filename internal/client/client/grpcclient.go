package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/syncapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      syncapi.SyncServiceClient

	mu          sync.RWMutex
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ctx = withAccessToken(ctx, s.AccessToken())
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient connects lazily to endpointURL. Extra dial options are
// appended after the defaults, so tests can swap the dialer.
func NewGRPCClient(endpointURL, accessToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken}
	if err := c.InitGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, dialOpts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = syncapi.NewSyncServiceClient(conn)
	return nil
}

func (s *GRPCClient) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *GRPCClient) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	if _, err := s.client.Ping(ctx, &emptypb.Empty{}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) Create(ctx context.Context, t models.EntityType, id string, payload models.Fields) (*models.RemoteRow, error) {
	return s.mutate(ctx, s.client.Create, t, id, payload)
}

func (s *GRPCClient) Update(ctx context.Context, t models.EntityType, id string, patch models.Fields) (*models.RemoteRow, error) {
	return s.mutate(ctx, s.client.Update, t, id, patch)
}

type mutateFunc = func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

func (s *GRPCClient) mutate(ctx context.Context, call mutateFunc, t models.EntityType, id string, fields models.Fields) (*models.RemoteRow, error) {
	req, err := syncapi.EncodeMutation(syncapi.Mutation{Type: string(t), ID: id, Fields: map[string]any(fields.Clone())})
	if err != nil {
		return nil, err
	}
	resp, err := call(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	rec, err := syncapi.DecodeRecord(resp)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s response: %w", t, id, err)
	}
	row := toRemoteRow(rec)
	return &row, nil
}

func (s *GRPCClient) Delete(ctx context.Context, t models.EntityType, id string) error {
	req, err := syncapi.EncodeMutation(syncapi.Mutation{Type: string(t), ID: id})
	if err != nil {
		return err
	}
	if _, err := s.client.Delete(ctx, req); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) ListAll(ctx context.Context, t models.EntityType) ([]models.RemoteRow, error) {
	return s.ListSince(ctx, t, 0)
}

func (s *GRPCClient) ListSince(ctx context.Context, t models.EntityType, since int64) ([]models.RemoteRow, error) {
	req, err := syncapi.EncodeListQuery(syncapi.ListQuery{Type: string(t), Since: since})
	if err != nil {
		return nil, err
	}
	resp, err := s.client.List(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	recs, err := syncapi.DecodeRecordList(resp)
	if err != nil {
		return nil, fmt.Errorf("decode %s list: %w", t, err)
	}
	out := make([]models.RemoteRow, 0, len(recs))
	for _, r := range recs {
		out = append(out, toRemoteRow(r))
	}
	return out, nil
}

func toRemoteRow(r syncapi.Record) models.RemoteRow {
	return models.RemoteRow{
		ID:        r.ID,
		Fields:    models.Fields(r.Fields),
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
		DeletedAt: r.DeletedAt,
	}
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	case codes.NotFound:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
