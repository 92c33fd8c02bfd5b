package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/runtime"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/server/http/controllers"
	queuesvc "github.com/nduplat/motorcycle-service-app-sub002/internal/services/queue"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// Server is the REST gateway in front of the queue service.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
	auth   *controllers.Authenticator
}

// New builds the gateway. Staff routes require a bearer token when the
// runtime config carries a JWT secret.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	logger = logger.WithComponent("http")
	authCfg := rt.Config().Auth
	auth := controllers.NewAuthenticator(authCfg.JWTSecret, authCfg.Issuer, logger)
	svc := queuesvc.NewWithLogger(rt, logger)

	mux := http.NewServeMux()
	controllers.NewControllerRegistry(rt, svc, auth, logger).RegisterAllRoutes(mux)
	s := &Server{rt: rt, logger: logger, auth: auth}
	s.srv = &http.Server{
		Handler:           cors(s.logRequests(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logpkg.ToStdLogger(logger),
	}
	return s
}

// Handler exposes the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Auth returns the authenticator guarding staff routes.
func (s *Server) Auth() *controllers.Authenticator { return s.auth }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close stops accepting connections.
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

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			logpkg.Str("method", r.Method),
			logpkg.Str("path", r.URL.Path),
			logpkg.Int("status", rec.status),
			logpkg.Dur("dur", time.Since(start)),
		)
	})
}
