package transport

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/anvil-platform/semverx/internal/catalog"
	"github.com/anvil-platform/semverx/internal/hotswap"
	"github.com/anvil-platform/semverx/internal/registry"
	"github.com/anvil-platform/semverx/internal/resolver"
	"github.com/anvil-platform/semverx/internal/semver"
)

// Persister saves committed components. *store.Badger satisfies it.
type Persister interface {
	Put(registry.Record) error
}

// Server implements SwapServiceServer on top of a catalog.
type Server struct {
	catalog  *catalog.Catalog
	resolver resolver.Resolver
	engine   *hotswap.Engine
	health   *health.Server
	persist  Persister
	log      logr.Logger
}

type ServerOption func(*Server)

func WithPersister(p Persister) ServerOption { return func(s *Server) { s.persist = p } }

func WithLogger(l logr.Logger) ServerOption { return func(s *Server) { s.log = l } }

func NewServer(cat *catalog.Catalog, res resolver.Resolver, eng *hotswap.Engine, opts ...ServerOption) *Server {
	s := &Server{
		catalog:  cat,
		resolver: res,
		engine:   eng,
		health:   health.NewServer(),
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Register installs the swap service and the health service on g.
func (s *Server) Register(g *grpc.Server) {
	RegisterSwapServiceServer(g, s)
	healthpb.RegisterHealthServer(g, s.health)
}

// Shutdown marks every service as not serving.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	if req.Name == "" {
		return &ResolveResponse{Error: invalid("name is required")}, nil
	}
	var v semver.Version
	if req.Version == "" {
		current, err := s.catalog.Get(req.Name)
		if err != nil {
			return &ResolveResponse{Error: toError(err)}, nil
		}
		v = current.Version
	} else {
		parsed, err := semver.Parse(req.Version)
		if err != nil {
			return &ResolveResponse{Error: toError(err)}, nil
		}
		v = parsed
	}

	plan, err := s.resolver.Resolve(logr.NewContext(ctx, s.log), resolver.Request{Name: req.Name, Version: v})
	if err != nil {
		return &ResolveResponse{Error: toError(err)}, nil
	}
	resp := &ResolveResponse{Order: plan.IDs()}
	for _, u := range plan.Diagnostics.UnresolvedOptional {
		resp.UnresolvedOptional = append(resp.UnresolvedOptional, u.Requirer+" -> "+u.Target)
	}
	return resp, nil
}

func (s *Server) Swap(ctx context.Context, req *SwapRequest) (*SwapResponse, error) {
	if req.Name == "" || req.Version == "" {
		return &SwapResponse{Error: invalid("name and version are required")}, nil
	}
	tx, err := s.engine.Swap(logr.NewContext(ctx, s.log), hotswap.Request{
		Name:      req.Name,
		Version:   req.Version,
		Payload:   req.Payload,
		Checksum:  req.Checksum,
		Signature: req.Signature,
	})
	resp := &SwapResponse{TransactionID: tx.ID.String(), Phase: string(tx.Phase)}
	for _, p := range tx.History {
		resp.History = append(resp.History, string(p))
	}
	if !s.engine.Healthy() {
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if err != nil {
		resp.Error = toError(err)
		return resp, nil
	}
	if s.persist != nil {
		committed, err := s.catalog.Get(req.Name)
		if err == nil {
			err = s.persist.Put(registry.ToRecord(committed))
		}
		if err != nil {
			s.log.Error(err, "persist committed component", "component", req.Name)
		}
	}
	return resp, nil
}

func (s *Server) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	c, err := s.catalog.Get(req.Name)
	if err != nil {
		return &GetResponse{Error: toError(err)}, nil
	}
	rec := registry.ToRecord(c)
	return &GetResponse{Component: &rec}, nil
}

func (s *Server) CanSwap(ctx context.Context, req *CanSwapRequest) (*CanSwapResponse, error) {
	ok, reason, err := s.engine.CanSwap(req.Name, req.Version)
	if err != nil {
		return &CanSwapResponse{Error: toError(err)}, nil
	}
	return &CanSwapResponse{Allowed: ok, Reason: reason}, nil
}

func invalid(msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: msg}
}

// toError maps core errors to response errors.
func toError(err error) *Error {
	out := &Error{Code: CodeInternal, Message: err.Error()}

	var (
		perr     *semver.ParseError
		conflict *resolver.VersionConflictError
		cycle    *resolver.CyclicDependencyError
	)
	switch {
	case errors.As(err, &perr):
		out.Code = CodeParseError
	case errors.As(err, &conflict):
		out.Code = CodeVersionConflict
		out.Package = conflict.Package
		out.Requirers = conflict.Requirers
	case errors.As(err, &cycle):
		out.Code = CodeCyclicDependency
		out.Cycle = cycle.Cycle
	case errors.Is(err, hotswap.ErrFatal):
		out.Code = CodeFatal
	case errors.Is(err, hotswap.ErrRolledBack):
		out.Code = CodeRolledBack
	case errors.Is(err, hotswap.ErrSwapInProgress):
		out.Code = CodeSwapInProgress
	case errors.Is(err, hotswap.ErrSwapRejected):
		out.Code = CodeSwapRejected
	case errors.Is(err, registry.ErrCorruption), errors.Is(err, hotswap.ErrBadSignature):
		out.Code = CodeCorruption
	case errors.Is(err, registry.ErrNotFound):
		out.Code = CodeNotFound
	case errors.Is(err, registry.ErrInvalidComponent), errors.Is(err, resolver.ErrInvalidConstraint):
		out.Code = CodeInvalidArgument
	}
	return out
}
