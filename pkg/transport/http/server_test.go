package http

import (
	"context"
	"io"
	"net"
	gohttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/akessl/schleuse/pkg/api"
	"github.com/akessl/schleuse/pkg/transport"
)

func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go srv.ServeOn(ln)
	time.Sleep(50 * time.Millisecond)
	return ln.Addr().String()
}

func TestServerStartsAndAcceptsRequests(t *testing.T) {
	runner := echoRunner(map[string]any{"text": "hello"}, "data: [DONE]\n\n")
	srv := NewServer(runner, nil, unlimited(), WithAddr("127.0.0.1:0"))
	addr := startServer(t, srv)

	resp, err := gohttp.Post("http://"+addr+"/run", "application/json",
		strings.NewReader(`{"input":{"prompt":"hi"}}`))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "data: [DONE]") {
		t.Errorf("body = %q, want SSE frames", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func TestServerGracefulShutdown(t *testing.T) {
	slowRunner := transport.JobRunnerFunc(func(ctx context.Context, _ *api.Job, w transport.BatchWriter) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return w.WriteBatch(ctx, "data: [DONE]\n\n")
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	srv := NewServer(slowRunner, nil, unlimited(),
		WithAddr("127.0.0.1:0"),
		WithShutdownTimeout(5*time.Second),
	)
	addr := startServer(t, srv)

	responseCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Post("http://"+addr+"/run", "application/json",
			strings.NewReader(`{"input":{}}`))
		if err != nil {
			responseCh <- 0
			return
		}
		defer resp.Body.Close()
		io.ReadAll(resp.Body)
		responseCh <- resp.StatusCode
	}()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	if status := <-responseCh; status != gohttp.StatusOK {
		t.Errorf("in-flight request status = %d, want 200", status)
	}
}

func TestServerExtraRoutesAndWrappers(t *testing.T) {
	var wrapped bool
	wrapper := func(next gohttp.Handler) gohttp.Handler {
		return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
			wrapped = true
			next.ServeHTTP(w, r)
		})
	}
	extra := gohttp.HandlerFunc(func(w gohttp.ResponseWriter, _ *gohttp.Request) {
		w.Write([]byte("extra ok"))
	})

	srv := NewServer(echoRunner(), nil, unlimited(),
		WithAddr("127.0.0.1:0"),
		WithWrapper(wrapper),
		WithRoute("GET /extra", extra),
	)
	addr := startServer(t, srv)
	defer srv.Shutdown(context.Background())

	resp, err := gohttp.Get("http://" + addr + "/extra")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "extra ok" {
		t.Errorf("extra route body = %q", body)
	}
	if !wrapped {
		t.Error("wrapper middleware was not applied")
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(echoRunner(), nil, unlimited(),
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithReadTimeout(time.Minute),
		WithShutdownTimeout(10*time.Second),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.config.ReadTimeout != time.Minute {
		t.Errorf("read timeout = %v, want 1m", srv.config.ReadTimeout)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
}
