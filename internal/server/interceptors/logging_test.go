package interceptors

import (
	"context"
	"net"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestClientIP(t *testing.T) {
	tcp := &net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 5555}
	cases := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"forwarded", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "1.1.1.1, 2.2.2.2")), "1.1.1.1"},
		{"real ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-real-ip", "3.3.3.3")), "3.3.3.3"},
		{"peer", peer.NewContext(context.Background(), &peer.Peer{Addr: tcp}), "10.1.2.3"},
		{"none", context.Background(), "unknown"},
	}
	for _, tc := range cases {
		if got := ClientIP(tc.ctx); got != tc.want {
			t.Errorf("%s: ClientIP = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLoggingUnary(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	intercept := LoggingUnary(zap.New(core), map[string]bool{"/grpc.health.v1.Health/Check": true})

	ok := func(context.Context, interface{}) (interface{}, error) { return "ok", nil }
	fail := func(context.Context, interface{}) (interface{}, error) {
		return nil, status.Error(codes.Unavailable, "down")
	}

	if _, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, ok); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("skipped method logged %d entries", logs.Len())
	}

	resp, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Do"}, ok)
	if err != nil || resp != "ok" {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
	_, err = intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Do"}, fail)
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("err = %v, want Unavailable passed through", err)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[1].Level != zap.WarnLevel || entries[1].ContextMap()["code"] != "Unavailable" {
		t.Errorf("failure entry = %+v", entries[1])
	}
}
