package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/server/models"
	"github.com/dmitrijs2005/ledgersync/internal/syncapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func toAPIRecord(r *models.Record) syncapi.Record {
	return syncapi.Record{
		ID:        r.ID,
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
		DeletedAt: r.DeletedAt,
		Fields:    r.Fields,
	}
}

// statusError maps service errors onto gRPC codes. Unknown errors are
// logged and hidden behind Internal.
func (s *GRPCServer) statusError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, syncapi.ErrMalformed),
		errors.Is(err, common.ErrUnknownEntityType),
		errors.Is(err, common.ErrEmptyID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.mutate(ctx, req, s.records.Create)
}

func (s *GRPCServer) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.mutate(ctx, req, s.records.Update)
}

type mutateFunc func(ctx context.Context, userID, recordType, id string, fields map[string]any) (*models.Record, error)

func (s *GRPCServer) mutate(ctx context.Context, req *structpb.Struct, call mutateFunc) (*structpb.Struct, error) {
	m, err := syncapi.DecodeMutation(req)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	rec, err := call(ctx, userIDFromContext(ctx), m.Type, m.ID, m.Fields)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	out, err := syncapi.EncodeRecord(toAPIRecord(rec))
	if err != nil {
		return nil, s.statusError(ctx, err)
	}
	return out, nil
}

func (s *GRPCServer) Delete(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	m, err := syncapi.DecodeMutation(req)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	if err := s.records.Delete(ctx, userIDFromContext(ctx), m.Type, m.ID); err != nil {
		return nil, s.statusError(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := syncapi.DecodeListQuery(req)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	recs, err := s.records.List(ctx, userIDFromContext(ctx), q.Type, q.Since)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	list := make([]syncapi.Record, 0, len(recs))
	for _, r := range recs {
		list = append(list, toAPIRecord(r))
	}

	out, err := syncapi.EncodeRecordList(list)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}
	return out, nil
}
