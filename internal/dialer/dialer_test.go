package dialer

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestDialPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	d := New(2*time.Second, "")
	conn, err := d.Dial(context.Background(), host, port, false)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	conn.Close()
}

func TestDialResolutionFailure(t *testing.T) {
	d := New(2*time.Second, "")
	_, err := d.Dial(context.Background(), "this-host-should-not-resolve.invalid", 80, false)
	if err == nil {
		t.Fatal("expected resolution failure")
	}
}
