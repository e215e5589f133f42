package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/jobfeed/config"
	"github.com/orchestra-mcp/jobfeed/src/bridge"
	"github.com/orchestra-mcp/jobfeed/src/hub"
	"github.com/orchestra-mcp/jobfeed/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Option configures a Server.
type Option func(*Server)

// WithRedis enables the Redis bridge. Without it the server runs standalone.
func WithRedis(cfg *bridge.RedisConfig) Option {
	return func(s *Server) { s.redisCfg = cfg }
}

// Server hosts the hub, the producer HTTP API and the websocket endpoint.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	service  *service.Service
	bridge   bridge.Bridge
	redisCfg *bridge.RedisConfig
	app      *fiber.App
	upgrader websocket.FastHTTPUpgrader
	logger   zerolog.Logger
	running  bool
}

// New wires the hub, service and routes. Call Start before serving.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	h := hub.New(&cfg.Socket, logger)
	s := &Server{
		cfg:     cfg,
		hub:     h,
		service: service.New(h, logger),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.Socket.ReadBufferSize,
			WriteBufferSize: cfg.Socket.WriteBufferSize,
			CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.app = fiber.New(fiber.Config{ErrorHandler: jsonError})
	s.RegisterRoutes(s.app)
	return s
}

// Service exposes the producer API.
func (s *Server) Service() *service.Service { return s.service }

// Hub returns the underlying hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// App returns the fiber app serving the HTTP routes.
func (s *Server) App() *fiber.App { return s.app }

// Start runs the hub event loop and attaches the bridge when configured.
func (s *Server) Start() {
	if s.running {
		return
	}
	go s.hub.Run()
	s.initBridge()
	s.running = true
	s.logger.Info().Msg("jobfeed server started")
}

// initBridge tries to start the Redis pub/sub bridge.
// If Redis is not reachable, the hub runs in standalone mode.
func (s *Server) initBridge() {
	if s.redisCfg == nil {
		return
	}
	rb := bridge.NewRedisBridge(s.redisCfg, s.hub, s.logger)
	if err := rb.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		return
	}
	s.bridge = rb
	s.hub.SetBridge(rb)
	s.logger.Info().Str("redis_addr", s.redisCfg.Addr).Msg("redis bridge connected")
}

// Stop stops the bridge and hub event loop.
func (s *Server) Stop() {
	if !s.running {
		return
	}
	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("bridge stop error")
		}
		s.bridge = nil
	}
	s.hub.Stop()
	s.running = false
}

// Handler routes /ws to the websocket upgrade and everything else to fiber.
func (s *Server) Handler() fasthttp.RequestHandler {
	ws := s.FastHTTPHandler()
	api := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			ws(ctx)
			return
		}
		api(ctx)
	}
}

// Serve starts the server and serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Start()
	defer s.Stop()

	srv := &fasthttp.Server{
		Handler:     s.Handler(),
		Name:        "jobfeed",
		Logger:      &s.logger,
		IdleTimeout: 2 * s.cfg.Socket.PingPeriod(),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}
