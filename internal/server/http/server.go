package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/rzbill/labeld/internal/runtime"
	"github.com/rzbill/labeld/internal/server/http/controllers"
	"github.com/rzbill/labeld/pkg/log"
)

// Server is the labeld REST gateway.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger log.Logger
}

// New builds the server with all routes registered.
func New(rt *runtime.Runtime, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	logger = logger.WithComponent("http")

	mux := http.NewServeMux()
	controllers.NewControllerRegistry(rt).RegisterAllRoutes(mux)

	s := &Server{rt: rt, logger: logger}
	s.srv = &http.Server{Handler: cors(requestID(logger, mux))}
	return s
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID tags every request with an X-Request-Id (honoring one supplied
// by the caller) and logs it at debug.
func requestID(logger log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			if u, err := uuid.NewV4(); err == nil {
				rid = u.String()
			}
		}
		w.Header().Set("X-Request-Id", rid)
		logger.Debug("request",
			log.F("request_id", rid),
			log.F("method", r.Method),
			log.F("path", r.URL.Path),
		)
		next.ServeHTTP(w, r)
	})
}
