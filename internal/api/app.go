package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/bidroom/internal/config"
	"github.com/npezzotti/bidroom/internal/server"
	"github.com/npezzotti/bidroom/internal/types"
	"go.uber.org/zap"
)

const throttleSweepInterval = time.Minute

type Authenticator interface {
	Authenticate(credential string) (types.Identity, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type StatsSnapshotter interface {
	Snapshot() map[string]any
}

// App is the HTTP surface in front of the chat server: the websocket
// handshake, the internal notification hook and health.
type App struct {
	log            *zap.SugaredLogger
	db             Pinger
	srv            *http.Server
	cs             *server.ChatServer
	auth           Authenticator
	stats          StatsSnapshotter
	throttle       *ipThrottle
	allowedOrigins []string
	notifyToken    string
}

func NewApp(mux *http.ServeMux, logger *zap.SugaredLogger, cs *server.ChatServer, db Pinger,
	authenticator Authenticator, su StatsSnapshotter, cfg *config.Config) *App {
	s := &App{
		log:            logger,
		db:             db,
		cs:             cs,
		auth:           authenticator,
		stats:          su,
		throttle:       newIPThrottle(cfg.Handshake.Rate, cfg.Handshake.Burst),
		allowedOrigins: cfg.AllowedOrigins,
		notifyToken:    cfg.NotifyToken,
	}

	mux.Handle("GET /ws", s.throttleMiddleware(s.authMiddleware(s.serveWs)))
	mux.HandleFunc("GET /healthz", s.healthz)
	if s.notifyToken != "" {
		mux.HandleFunc("POST /api/notifications", s.notifyMiddleware(s.pushNotification))
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *App) Start() error {
	go s.throttle.run(throttleSweepInterval)

	s.log.Infof("starting server on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server...")
	s.throttle.stop()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
