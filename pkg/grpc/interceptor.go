package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

type principalKey struct{}

// MethodRoles lists the roles allowed to call each guarded method. Methods
// not listed accept anonymous calls but still reject a bad token.
var MethodRoles = map[string][]models.Role{
	FullMethodAcknowledgeAlert: models.AlertHandlers,
	FullMethodResolveAlert:     models.AlertHandlers,
}

func PrincipalFrom(ctx context.Context) *engine.Principal {
	p, _ := ctx.Value(principalKey{}).(*engine.Principal)
	return p
}

func bearerToken(ctx context.Context) (token string, present bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", false
	}
	scheme, token, found := strings.Cut(values[0], " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", true
	}
	return strings.TrimSpace(token), true
}

func (s *GeoAlertServer) CreateAuthInterceptor(policy map[string][]models.Role) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		token, present := bearerToken(ctx)

		if roles, guarded := policy[info.FullMethod]; guarded {
			principal, err := engine.Authorize(ctx, s.Engine.Auth, token, roles...)
			if err != nil {
				return nil, toStatus(info.FullMethod, err)
			}
			return handler(context.WithValue(ctx, principalKey{}, principal), req)
		}

		if !present {
			return handler(ctx, req)
		}
		if token == "" {
			return nil, toStatus(info.FullMethod, engine.ErrAuth)
		}
		principal, err := s.Engine.Auth.Authenticate(ctx, token)
		if err != nil {
			return nil, toStatus(info.FullMethod, err)
		}
		return handler(context.WithValue(ctx, principalKey{}, principal), req)
	}
}

// CreateRateLimitInterceptor applies the per-user limiter to targetMethods,
// keyed on the request's user_id field.
func (s *GeoAlertServer) CreateRateLimitInterceptor(targetMethods []string) grpc.UnaryServerInterceptor {
	targetMethodMap := common.Reducer(targetMethods,
		func(m map[string]bool, method string) map[string]bool {
			m[method] = true
			return m
		},
		map[string]bool{},
	)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if targetMethodMap[info.FullMethod] {
			if r, ok := req.(*structpb.Struct); ok {
				userID := r.GetFields()["user_id"].GetStringValue()
				if userID != "" && !s.CheckUserLimiter(userID) {
					return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
				}
			}
		}

		return handler(ctx, req)
	}
}

// NewServer builds a grpc.Server with auth and rate limiting chained in
// front of the service.
func (s *GeoAlertServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		s.CreateAuthInterceptor(MethodRoles),
		s.CreateRateLimitInterceptor([]string{FullMethodIngest}),
	))
	server := grpc.NewServer(opts...)
	RegisterGeoAlertService(server, s)
	return server
}
