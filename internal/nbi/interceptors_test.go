package nbi

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/trajectory-planner/internal/logging"
)

func TestRequestIDInterceptorOutsideServerStream(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "debug", Format: "text", Output: &buf})
	interceptor := RequestIDUnaryServerInterceptor(log)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "abc-123"))
	info := &grpc.UnaryServerInfo{FullMethod: SolveFullMethod}

	var seen string
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		seen = logging.RequestIDFromContext(ctx)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seen != "abc-123" {
		t.Fatalf("handler request id = %q, want abc-123", seen)
	}

	out := buf.String()
	if !strings.Contains(out, "could not set request id header") {
		t.Fatalf("missing header failure log in:\n%s", out)
	}
	if !strings.Contains(out, "abc-123") {
		t.Fatalf("log lines should carry the request id:\n%s", out)
	}
}
