// Package server exposes a gateway Session over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/pushgate/internal/auth"
	"github.com/danmuck/pushgate/internal/feedbackstore"
	"github.com/danmuck/pushgate/internal/gateway"
	"github.com/danmuck/pushgate/internal/observability"
	"github.com/danmuck/pushgate/internal/protocol/session"
	"github.com/danmuck/pushgate/internal/protocol/wire"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const Version = "0.1.0"

// Gateway is the part of gateway.Session the HTTP front uses.
type Gateway interface {
	Write(tokens []wire.Token, payloads [][]byte) (*gateway.Future[gateway.Ack], error)
	Read() *gateway.Future[[]wire.FeedbackRecord]
	State() gateway.State
	Environment() session.Environment
}

var _ Gateway = (*gateway.Session)(nil)

type Options struct {
	Addr        string
	CORSOrigins []string
	// WaitTimeout caps how long a handler blocks on a gateway result.
	WaitTimeout time.Duration
	// Validator, when set, guards the /v1 routes with a bearer token.
	Validator auth.Validator
	Logger    *zerolog.Logger
}

type Server struct {
	gw       Gateway
	store    feedbackstore.Store
	opts     Options
	log      zerolog.Logger
	router   *gin.Engine
	appeared time.Time
}

// New builds the router. store may be nil, in which case harvested feedback
// is only returned, never kept.
func New(gw Gateway, store feedbackstore.Store, opts Options) *Server {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 30 * time.Second
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	observability.RegisterMetrics()
	logger := observability.Component(opts.Logger, "http")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(opts.CORSOrigins),
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", auth.HeaderAuthorization, observability.HeaderRequestID},
		ExposeHeaders: []string{observability.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		gw:       gw,
		store:    store,
		opts:     opts,
		log:      logger,
		router:   r,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Serve listens on Options.Addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info().Msg("http server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
