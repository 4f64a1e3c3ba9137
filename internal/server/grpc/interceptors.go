package grpcserver

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/and161185/cookiepool/internal/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logCall(log, ctx, info.FullMethod, err, start)
		return resp, err
	}
}

// LoggingStream is the streaming counterpart of LoggingUnary.
func LoggingStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		start := time.Now()
		err := next(srv, ss)
		logCall(log, ss.Context(), info.FullMethod, err, start)
		return err
	}
}

// metadata only, no payloads
func logCall(log *zap.Logger, ctx context.Context, method string, err error, start time.Time) {
	var remote string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	log.Info("grpc",
		zap.String("method", method),
		zap.String("code", status.Code(err).String()),
		zap.Duration("dur", time.Since(start)),
		zap.String("peer", remote),
	)
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer recoverInto(log, info.FullMethod, &err)
		return next(ctx, req)
	}
}

// RecoverStream is the streaming counterpart of RecoverUnary.
func RecoverStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer recoverInto(log, info.FullMethod, &err)
		return next(srv, ss)
	}
}

func recoverInto(log *zap.Logger, method string, err *error) {
	if r := recover(); r != nil {
		log.Error("panic",
			zap.Any("reason", r),
			zap.ByteString("stack", debug.Stack()),
			zap.String("method", method),
		)
		*err = status.Error(codes.Internal, "internal")
	}
}

// publicPrefixes are served without an admin token.
var publicPrefixes = []string{
	"/grpc.health.v1.Health/",
}

// AdminUnary rejects calls outside publicPrefixes that lack a valid admin token.
func AdminUnary(tokens *auth.Tokens) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		ctx, err := authorize(ctx, tokens, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// AdminStream is the streaming counterpart of AdminUnary.
func AdminStream(tokens *auth.Tokens) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		if _, err := authorize(ss.Context(), tokens, info.FullMethod); err != nil {
			return err
		}
		return next(srv, ss)
	}
}

func authorize(ctx context.Context, tokens *auth.Tokens, method string) (context.Context, error) {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(method, p) {
			return ctx, nil
		}
	}
	tok, ok := bearerTokenFromMD(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "no auth")
	}
	id, err := tokens.Verify(tok)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, "invalid token")
	}
	return auth.WithAdmin(ctx, id), nil
}

func bearerTokenFromMD(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get("authorization") {
		if t, ok := auth.BearerToken(v); ok {
			return t, true
		}
	}
	return "", false
}
