package grpc

import (
	"context"
	"errors"

	"github.com/lexivault/lexivault/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	authServiceName = "lexivault.auth.v1.Auth"
	whoAmIMethod    = "/" + authServiceName + "/WhoAmI"
)

// AuthServer answers questions about the caller's access token. Requests and
// replies use well-known types, so the service needs no generated stubs.
type AuthServer interface {
	WhoAmI(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: authServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lexivault/auth/v1/auth.proto",
}

func whoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuthServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: whoAmIMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AuthServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// WhoAmI returns the account behind the access token checked by
// accessTokenInterceptor: {"userId", "username", "roles"}.
func (s *GRPCServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	userID, _ := ctx.Value(UserIDKey).(string)
	if userID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	u, err := s.auth.CurrentUser(ctx, userID)
	switch {
	case errors.Is(err, common.ErrUserDisabled):
		return nil, status.Error(codes.PermissionDenied, "user is disabled")
	case errors.Is(err, common.ErrServiceNotInitialized):
		return nil, status.Error(codes.Unavailable, err.Error())
	case err != nil:
		s.logger.Error(ctx, "whoami lookup failed", "user_id", userID, "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	roles := make([]interface{}, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = r
	}
	return structpb.NewStruct(map[string]interface{}{
		"userId":   u.ID,
		"username": u.Username,
		"roles":    roles,
	})
}
