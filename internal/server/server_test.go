package server

import (
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/jkatz326/ngram/internal/archive"
	"github.com/jkatz326/ngram/internal/client"
	"github.com/jkatz326/ngram/internal/pool"
	"github.com/jkatz326/ngram/internal/wire"
	"github.com/jkatz326/ngram/pkg/config"
	"github.com/jkatz326/ngram/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// startTestServer runs a server on an ephemeral port and returns its
// address. The server is stopped and fully drained during cleanup.
func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	cfg := config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		PollInterval: 20 * time.Millisecond,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	store := archive.NewStore(0)
	workers := pool.New(4, 16)
	srv := New(cfg, store, workers, Options{
		Metrics: metrics.New(prometheus.NewRegistry()),
	})

	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run() }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server never bound its listener")
		}
		time.Sleep(time.Millisecond)
	}

	t.Cleanup(func() {
		srv.Stop()
		select {
		case err := <-runDone:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after Stop")
		}
	})
	return srv, srv.Addr().String()
}

func TestEndToEnd(t *testing.T) {
	_, addr := startTestServer(t)
	c := client.New(addr)

	id, err := c.Publish("hello world")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if id != 0 {
		t.Errorf("first publish id = %d, want 0", id)
	}

	ids, err := c.Search("hello")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []uint64{0}) {
		t.Errorf("Search(hello) = %v, want [0]", ids)
	}

	text, err := c.Retrieve(0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("Retrieve(0) = %q, want %q", text, "hello world")
	}

	if _, err := c.Retrieve(5); err == nil {
		t.Error("Retrieve(5) succeeded, want failure")
	}
}

func TestSearchNoResults(t *testing.T) {
	_, addr := startTestServer(t)
	c := client.New(addr)

	if _, err := c.Publish("some words here"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	ids, err := c.Search("zzz")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Search(zzz) = %v, want empty", ids)
	}
}

func TestSearchCaseInsensitiveOverWire(t *testing.T) {
	_, addr := startTestServer(t)
	c := client.New(addr)

	id, err := c.Publish("The Quick Fox")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	for _, word := range []string{"the", "THE", "Quick", "fox"} {
		ids, err := c.Search(word)
		if err != nil {
			t.Fatalf("Search(%q) failed: %v", word, err)
		}
		if !reflect.DeepEqual(ids, []uint64{id}) {
			t.Errorf("Search(%q) = %v, want [%d]", word, ids, id)
		}
	}
}

func TestMalformedRequestGetsFailure(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	// Unknown tag byte, then close our write side so the server sees a
	// complete (bad) request.
	if _, err := conn.Write([]byte{0xAB}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	conn.(*net.TCPConn).CloseWrite()

	resp, err := wire.DecodeResponse(conn)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if _, ok := resp.(wire.Failure); !ok {
		t.Errorf("response = %#v, want Failure", resp)
	}
}

func TestTruncatedRequestGetsFailure(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	full := wire.EncodeRequest(wire.Publish{Text: "truncated away"})
	if _, err := conn.Write(full[:len(full)-4]); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	conn.(*net.TCPConn).CloseWrite()

	resp, err := wire.DecodeResponse(conn)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if _, ok := resp.(wire.Failure); !ok {
		t.Errorf("response = %#v, want Failure", resp)
	}
}

func TestConcurrentClients(t *testing.T) {
	_, addr := startTestServer(t)

	const clients = 8
	errCh := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func() {
			c := client.New(addr)
			_, err := c.Publish("concurrent publish test")
			errCh <- err
		}()
	}
	for i := 0; i < clients; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("concurrent publish failed: %v", err)
		}
	}

	ids, err := client.New(addr).Search("concurrent")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(ids) != clients {
		t.Errorf("Search returned %d ids, want %d", len(ids), clients)
	}
}

func TestStopShutsDownWithinPollInterval(t *testing.T) {
	srv, addr := startTestServer(t)

	if _, err := client.New(addr).Publish("before shutdown"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	srv.Stop()
	srv.Stop() // idempotent

	deadline := time.Now().Add(2 * time.Second)
	for srv.State() != StateStopped {
		if time.Now().After(deadline) {
			t.Fatalf("server state = %d, never reached StateStopped", srv.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The listener is gone: new exchanges must fail.
	if _, err := client.New(addr).Search("before"); err == nil {
		t.Error("request after shutdown succeeded, want connection failure")
	}
}

func TestBindFailureIsFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := config.ServerConfig{Host: "127.0.0.1", Port: port, PollInterval: 20 * time.Millisecond}
	workers := pool.New(1, 4)
	defer workers.Stop()
	srv := New(cfg, archive.NewStore(0), workers, Options{})
	if err := srv.Run(); err == nil {
		t.Error("Run on an occupied port returned nil, want bind error")
	}
	if srv.State() != StateStopped {
		t.Errorf("state after bind failure = %d, want StateStopped", srv.State())
	}
}

func TestRunTwiceRejected(t *testing.T) {
	srv, _ := startTestServer(t)
	if err := srv.Run(); err == nil {
		t.Error("second Run returned nil, want error")
	}
}
