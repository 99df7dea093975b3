// Package gateway wires every subsystem (gate pipeline, tool router,
// WebSocket hub, video streamer, engine channel, reactor) into one
// process-wide Services struct and drives its startup and graceful
// shutdown sequence, per spec sections 5 and 6.
//
// Author: momentics <momentics@gmail.com>
package gateway

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/momentics/hioload-gateway/internal/auth"
	"github.com/momentics/hioload-gateway/internal/bufpool"
	"github.com/momentics/hioload-gateway/internal/config"
	"github.com/momentics/hioload-gateway/internal/connfsm"
	"github.com/momentics/hioload-gateway/internal/engine"
	"github.com/momentics/hioload-gateway/internal/ipfilter"
	"github.com/momentics/hioload-gateway/internal/license"
	"github.com/momentics/hioload-gateway/internal/ratelimit"
	"github.com/momentics/hioload-gateway/internal/reactor"
	"github.com/momentics/hioload-gateway/internal/router"
	"github.com/momentics/hioload-gateway/internal/sharedmem"
	"github.com/momentics/hioload-gateway/internal/statscore"
	"github.com/momentics/hioload-gateway/internal/toolregistry"
	"github.com/momentics/hioload-gateway/internal/videostream"
	"github.com/momentics/hioload-gateway/internal/workerpool"
	"github.com/momentics/hioload-gateway/internal/wsgateway"
)

// Services is the process-wide collection of gateway subsystems,
// constructed once at startup and torn down once at shutdown.
type Services struct {
	cfg    *config.Config
	logger *slog.Logger

	stats     *statscore.Core
	ipFilter  *ipfilter.Filter
	rateLimit *ratelimit.Limiter
	authn     *auth.Authenticator

	engine  *engine.Channel
	lic     *license.Manager
	tools   *toolregistry.Registry
	router  *router.Router
	wsHub   *wsgateway.Hub
	video   *videostream.Streamer

	listener net.Listener
	rx       *reactor.Reactor
	pool     *workerpool.Pool
	bufs     *bufpool.Manager
}

// New builds every Services collaborator from cfg except the reactor,
// and does not yet bind a listening socket or start the engine
// subprocess; Start does those and builds the reactor.
func New(cfg *config.Config, logger *slog.Logger) (*Services, error) {
	ipFilter, err := ipfilter.New(cfg.IPWhitelist.Enabled, cfg.IPWhitelist.Entries)
	if err != nil {
		return nil, fmt.Errorf("gateway: ip filter: %w", err)
	}

	var rateLimit *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rateLimit = ratelimit.New(
			cfg.RateLimit.RequestsPerWindow,
			time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
			cfg.RateLimit.BurstSize,
		)
	}

	authn, err := buildAuthenticator(cfg)
	if err != nil {
		return nil, fmt.Errorf("gateway: auth: %w", err)
	}

	stats := statscore.New()
	tools := toolregistry.New(toolregistry.DefaultCatalog())
	eng := engine.New(cfg.BrowserPath, nil)
	lic := license.New(cfg.BrowserPath)

	var videoSource sharedmem.Source
	if path := os.Getenv("GATEWAY_VIDEO_DEV_FILE"); path != "" {
		fileSource, err := sharedmem.NewFileSource(path)
		if err != nil {
			return nil, fmt.Errorf("gateway: video dev source: %w", err)
		}
		videoSource = fileSource
	}
	var video *videostream.Streamer
	if videoSource != nil {
		video = videostream.New(logger, videoSource)
	}

	wsHub := wsgateway.New(logger, eng, cfg.RequestTimeout())

	rt := router.New(router.Config{
		Logger:         logger,
		IPFilter:       ipFilter,
		RateLimit:      rateLimit,
		Auth:           authn,
		Tools:          tools,
		Engine:         eng,
		License:        lic,
		Stats:          stats,
		MaxBodySize: config.MaxBodySize,
		CORS: router.CORSConfig{
			Enabled:        cfg.CORS.Enabled,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
			MaxAgeSeconds:  cfg.CORS.MaxAgeSeconds,
		},
		RequestTimeout: cfg.RequestTimeout(),
		LogRequests:    cfg.LogRequests,
		OnWSUpgrade:    wsHub.Adopt,
		OnVideo:        videoHook(video),
	})

	bufs := bufpool.New()
	pool := workerpool.New(cfg.MaxConnections, cfg.MaxConnections*4)

	return &Services{
		cfg:       cfg,
		logger:    logger,
		stats:     stats,
		ipFilter:  ipFilter,
		rateLimit: rateLimit,
		authn:     authn,
		engine:    eng,
		lic:       lic,
		tools:     tools,
		router:    rt,
		wsHub:     wsHub,
		video:     video,
		pool:      pool,
		bufs:      bufs,
	}, nil
}

func videoHook(v *videostream.Streamer) router.VideoRouteHook {
	if v == nil {
		return nil
	}
	return v.HandleRoute
}

func buildAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	switch cfg.AuthMode {
	case "", "token":
		if cfg.AuthToken == "" {
			return nil, nil
		}
		return auth.NewBearer(cfg.AuthToken), nil
	case "jwt":
		keyPEM, err := os.ReadFile(cfg.JWT.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read jwt public key: %w", err)
		}
		pubKey, err := parseRSAPublicKey(keyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		return auth.NewJWT(
			pubKey,
			cfg.JWT.Algorithm,
			cfg.JWT.ExpectedIssuer,
			cfg.JWT.ExpectedAudience,
			time.Duration(cfg.JWT.ClockSkewSeconds)*time.Second,
			cfg.JWT.RequireExp,
		), nil
	default:
		return nil, fmt.Errorf("unknown auth_mode %q", cfg.AuthMode)
	}
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaKey, nil
}

// handler dispatches TryExtract by connection Kind, letting the single
// Reactor serve both plain HTTP and upgraded WebSocket connections
// without knowing anything about either protocol itself.
type handler struct {
	http *router.Router
	ws   *wsgateway.Hub
}

func (h *handler) TryExtract(conn *connfsm.Conn) (func(), bool, error) {
	if conn.Kind == connfsm.KindWebSocket {
		return h.ws.TryExtract(conn)
	}
	return h.http.TryExtract(conn)
}

// Start launches the engine subprocess, waits for it to report ready
// within the browser timeout, binds the configured listening socket,
// and then runs the reactor's accept/poll loop. It blocks until that
// loop ends (ctx canceled, Shutdown, or an accept failure), and returns
// early with an error if the engine start or the bind fails.
func (s *Services) Start(ctx context.Context) error {
	engineCtx, cancel := context.WithTimeout(ctx, s.cfg.BrowserTimeout())
	defer cancel()
	if err := s.engine.Start(engineCtx); err != nil {
		return fmt.Errorf("gateway: engine start: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", addr, err)
	}
	s.listener = ln

	h := &handler{http: s.router, ws: s.wsHub}
	rx, err := reactor.New(ln, h, s.pool, s.bufs, s.logger, reactor.Options{
		IdleTimeout: s.cfg.KeepAliveTimeout(),
	})
	if err != nil {
		return fmt.Errorf("gateway: reactor: %w", err)
	}
	s.rx = rx

	rx.OnHousekeeping(s.wsHub.Housekeeping)
	rx.OnHousekeeping(func(now time.Time) { s.stats.MaybeRecomputeRate(now) })

	s.logger.Info("gateway listening", slog.String("addr", ln.Addr().String()))
	return rx.Run(ctx)
}

// Shutdown stops the reactor loop, waiting for it no longer than ctx
// allows, then stops the engine subprocess, the worker pool and the
// rate limiter's GC loop.
func (s *Services) Shutdown(ctx context.Context) error {
	if s.rx != nil {
		done := make(chan struct{})
		go func() {
			s.rx.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("gateway: shutdown timed out waiting for reactor")
		}
	}
	s.engine.Stop()
	s.pool.Close()
	if s.rateLimit != nil {
		s.rateLimit.Stop()
	}
	return nil
}

// Listener exposes the bound listener, mainly for tests.
func (s *Services) Listener() net.Listener { return s.listener }
