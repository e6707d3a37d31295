package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"stockbt/internal/domain"
	"stockbt/internal/store"
)

// BacktestServiceName is the fully qualified gRPC service name.
const BacktestServiceName = "stockbt.v1.BacktestService"

const (
	runMethod = "/" + BacktestServiceName + "/Run"
	getMethod = "/" + BacktestServiceName + "/Get"
)

// backtestHandler is the server-side contract of BacktestService. Messages
// are generic structs carrying the JSON form of RunRequest and RunRecord.
type backtestHandler interface {
	Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*backtestHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "Get", Handler: getHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockbt/v1/backtest.proto",
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(backtestHandler).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(backtestHandler).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(backtestHandler).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(backtestHandler).Get(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Compile-time interface check.
var _ backtestHandler = (*GRPCServer)(nil)

// GRPCServer implements BacktestService on top of a Service.
type GRPCServer struct {
	svc *Service
}

// NewGRPCServer creates a gRPC handler backed by svc.
func NewGRPCServer(svc *Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (s *GRPCServer) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&backtestServiceDesc, s)
}

// Run executes the backtest described by in.
func (s *GRPCServer) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RunRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	rec, err := s.svc.Run(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(rec)
}

// Get returns the stored run named by the "id" field of in.
func (s *GRPCServer) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	rec, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(rec)
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrNoStore):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// GRPCClient calls BacktestService.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

// NewGRPCClient wraps an established connection.
func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// Run starts a backtest on the server and waits for its record.
func (c *GRPCClient) Run(ctx context.Context, req RunRequest, opts ...grpc.CallOption) (domain.RunRecord, error) {
	in, err := toStruct(req)
	if err != nil {
		return domain.RunRecord{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runMethod, in, out, opts...); err != nil {
		return domain.RunRecord{}, err
	}
	var rec domain.RunRecord
	if err := fromStruct(out, &rec); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decoding run: %w", err)
	}
	return rec, nil
}

// Get fetches a stored run.
func (c *GRPCClient) Get(ctx context.Context, id string, opts ...grpc.CallOption) (domain.RunRecord, error) {
	in, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return domain.RunRecord{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getMethod, in, out, opts...); err != nil {
		return domain.RunRecord{}, err
	}
	var rec domain.RunRecord
	if err := fromStruct(out, &rec); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decoding run: %w", err)
	}
	return rec, nil
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
