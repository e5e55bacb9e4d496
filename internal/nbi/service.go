package nbi

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/trajectory-planner/core"
	"github.com/signalsfoundry/trajectory-planner/internal/logging"
	"github.com/signalsfoundry/trajectory-planner/kb"
)

const (
	// PlannerServiceName is the fully-qualified gRPC service name.
	PlannerServiceName = "trajectory.planner.v1.PlannerService"
	// SolveFullMethod is the gRPC method path of Solve.
	SolveFullMethod = "/" + PlannerServiceName + "/Solve"
)

// PlannerServer is the server API for the planner service. Requests and
// responses are google.protobuf.Struct documents; see RequestFromStruct and
// ResponseToStruct for their layout.
type PlannerServer interface {
	Solve(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// PlannerServiceDesc describes the planner service for grpc.Server.
var PlannerServiceDesc = grpc.ServiceDesc{
	ServiceName: PlannerServiceName,
	HandlerType: (*PlannerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Solve", Handler: solveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "trajectory/planner/v1/planner.proto",
}

// RegisterPlannerServiceServer registers srv on s.
func RegisterPlannerServiceServer(s grpc.ServiceRegistrar, srv PlannerServer) {
	s.RegisterService(&PlannerServiceDesc, srv)
}

func solveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PlannerServer).Solve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SolveFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PlannerServer).Solve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PlannerClient is a thin client for the planner service.
type PlannerClient struct {
	cc grpc.ClientConnInterface
}

// NewPlannerClient wraps a client connection.
func NewPlannerClient(cc grpc.ClientConnInterface) *PlannerClient {
	return &PlannerClient{cc: cc}
}

// Solve invokes the remote Solve RPC.
func (c *PlannerClient) Solve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SolveFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PlannerService implements PlannerServer on top of a catalog of physical
// models. One core.Planner is kept per catalog entry and dropped whenever
// that entry changes.
type PlannerService struct {
	catalog *kb.KnowledgeBase
	log     logging.Logger
	opts    []core.PlannerOption

	mu          sync.Mutex
	planners    map[string]*core.Planner
	unsubscribe func()
}

// NewPlannerService wires a PlannerService to the model catalog. The
// options are applied to every planner the service builds.
func NewPlannerService(catalog *kb.KnowledgeBase, log logging.Logger, opts ...core.PlannerOption) *PlannerService {
	if log == nil {
		log = logging.Noop()
	}
	s := &PlannerService{
		catalog:  catalog,
		log:      log,
		opts:     opts,
		planners: make(map[string]*core.Planner),
	}
	if catalog != nil {
		s.unsubscribe = catalog.Subscribe(func(e kb.Event) {
			s.mu.Lock()
			delete(s.planners, e.Name)
			s.mu.Unlock()
		})
	}
	return s
}

// Close detaches the service from the catalog.
func (s *PlannerService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Solve decodes a boundary problem, solves it with the requested physical
// model and encodes the result.
func (s *PlannerService) Solve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.catalog == nil {
		return nil, status.Error(grpccodes.Unavailable, "model catalog not initialised")
	}
	if in == nil {
		return nil, status.Error(grpccodes.InvalidArgument, "solve request is required")
	}

	req, err := RequestFromStruct(in)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "planner.solve", req.Model,
		attribute.Float64("planner.horizon", req.Problem.Horizon),
		attribute.Int("planner.samples", req.Problem.Samples),
	)
	defer span.End()

	planner, err := s.plannerFor(req.Model)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, ToStatusError(err)
	}

	traj, res, err := planner.Solve(ctx, req.Problem)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Warn(ctx, "solve rejected", logging.String("model", req.Model), logging.Err(err))
		return nil, ToStatusError(err)
	}
	span.SetAttributes(
		attribute.String("planner.status", res.Status.String()),
		attribute.Bool("planner.converged", res.Converged),
		attribute.Int("planner.iterations", res.Iterations),
		attribute.Float64("planner.residual", res.Residual),
	)

	out, err := ResponseToStruct(traj, res, req.IncludeTrajectory)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *PlannerService) plannerFor(name string) (*core.Planner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.planners[name]; ok {
		return p, nil
	}
	pm, err := s.catalog.GetModel(name)
	if err != nil {
		return nil, err
	}
	p, err := core.NewPlanner(pm, s.log.With(logging.String("model", name)), s.opts...)
	if err != nil {
		return nil, err
	}
	s.planners[name] = p
	return p, nil
}
