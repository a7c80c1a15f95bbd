package ipfs

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"planet/internal/services"
)

func TestGatewayRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ipns/exact/feed.json":
			_, _ = w.Write([]byte(strings.Repeat("a", 16)))
		case "/ipns/large/feed.json":
			_, _ = w.Write([]byte(strings.Repeat("a", 17)))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	_, portText, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	gw := NewGateway(NewEndpoints("127.0.0.1", 0, uint16(port)), srv.Client(), time.Second)
	gw.maxBody = 16

	body, err := gw.FeedManifest(context.Background(), "exact")
	if err != nil {
		t.Fatalf("body at the limit: %v", err)
	}
	if len(body) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(body))
	}

	if _, err := gw.FeedManifest(context.Background(), "large"); !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error for oversized body, got %v", err)
	}
}
