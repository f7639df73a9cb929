package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type subjectKey struct{}

// Subject возвращает id клиента, проверенный UnaryServerInterceptor
func Subject(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok
}

// UnaryServerInterceptor проверяет токен из метаданных authorization
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		v, err := current()
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "no authorization metadata")
		}

		subject, err := v.VerifyHeader(values[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(context.WithValue(ctx, subjectKey{}, subject), req)
	}
}

// RequireService пропускает только служебных клиентов. Вызывается после
// UnaryServerInterceptor.
func RequireService(ctx context.Context) error {
	subject, ok := Subject(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "request is not authenticated")
	}
	v, err := current()
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	if !v.IsService(subject) {
		return status.Errorf(codes.PermissionDenied, "%q is not a service client", subject)
	}
	return nil
}
