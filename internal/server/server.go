// Package server exposes the orchestrator over gRPC: a unary Validate method
// carried in google.protobuf.Struct messages, and the standard health service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/warden/internal/auth"
	"github.com/triage-ai/warden/internal/engine"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "warden.v1.Warden"

// ValidateMethod is the full method path clients invoke.
const ValidateMethod = "/" + ServiceName + "/Validate"

// Validator is satisfied by *engine.Orchestrator.
type Validator interface {
	Validate(ctx context.Context, text string, md engine.ValidationMetadata) (*engine.ValidationResult, error)
}

type wardenServer interface {
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var wardenServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*wardenServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Validate",
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(wardenServer).Validate(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return srv.(wardenServer).Validate(ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}},
	Metadata: "warden/v1/warden.proto",
}

// Server implements the Warden gRPC service.
type Server struct {
	validator Validator
	auth      auth.Authenticator
	health    *health.Server
	logger    *zap.Logger
}

// New returns a Server. A nil authenticator leaves Validate open.
func New(v Validator, a auth.Authenticator, logger *zap.Logger) *Server {
	return &Server{
		validator: v,
		auth:      a,
		health:    health.NewServer(),
		logger:    logger,
	}
}

// Register attaches the Warden and health services to gs and marks both
// serving.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&wardenServiceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Shutdown flips every health status to NOT_SERVING so load balancers drain
// the instance before the orchestrator stops.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// Validate implements warden.v1.Warden/Validate. The request carries
// {text, user_id, session_id, context}; the response is the validation
// result in its JSON shape.
func (s *Server) Validate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	var principal *auth.Principal
	if s.auth != nil {
		p, err := s.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		principal = p
	}

	fields := req.GetFields()
	md := engine.ValidationMetadata{
		UserID:    fields["user_id"].GetStringValue(),
		SessionID: fields["session_id"].GetStringValue(),
	}
	if c := fields["context"].GetStructValue(); c != nil {
		md.Context = c.AsMap()
	}
	if principal != nil {
		if md.Context == nil {
			md.Context = make(map[string]any, 1)
		}
		md.Context["api_key_id"] = principal.KeyID
	}

	result, err := s.validator.Validate(ctx, fields["text"].GetStringValue(), md)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidMetadata) {
			return nil, status.Error(codes.InvalidArgument, "user_id and session_id are required")
		}
		s.logger.Error("validation failed", zap.Error(err))
		return nil, status.Error(codes.Internal, "validation failed")
	}

	resp, err := toStruct(result)
	if err != nil {
		s.logger.Error("failed to encode validation result", zap.Error(err))
		return nil, status.Error(codes.Internal, "encoding result")
	}

	s.logger.Debug("grpc validate",
		zap.String("fingerprint", result.Fingerprint),
		zap.String("severity", result.Severity.String()),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (s *Server) authenticate(ctx context.Context) (*auth.Principal, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var header string
	if vals := md.Get("authorization"); len(vals) > 0 {
		header = vals[0]
	}
	key, err := auth.ExtractAPIKey(header)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization metadata")
	}
	p, err := s.auth.Authenticate(ctx, key)
	switch {
	case errors.Is(err, auth.ErrAuthUnavailable):
		return nil, status.Error(codes.Unavailable, "authentication unavailable")
	case err != nil:
		return nil, status.Error(codes.Unauthenticated, "invalid API key")
	}
	return p, nil
}

// toStruct converts a result to a Struct through its JSON form so both
// transports return the same field names.
func toStruct(r *engine.ValidationResult) (*structpb.Struct, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnaryLogging logs every unary call with its status code.
func UnaryLogging(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if !strings.HasPrefix(info.FullMethod, "/grpc.health.") {
			logger.Info("grpc request",
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Duration("duration", time.Since(start)),
			)
		}
		return resp, err
	}
}
