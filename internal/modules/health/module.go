package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"algo_bot/internal/config"
	"algo_bot/internal/modules/health/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Enabled bool
	Addr    string // e.g. ":8080"
}

func NewConfig(cfg *config.Config) Config {
	return Config{Enabled: cfg.Health.Enabled, Addr: cfg.Health.Addr}
}

func NewRouter(state *service.State) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// liveness: the process answers
	r.GET("/livez", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// readiness: a mode is running
	r.GET("/readyz", func(c *gin.Context) {
		if !state.Ready() {
			c.String(http.StatusServiceUnavailable, "not ready")
			return
		}
		c.String(http.StatusOK, "ready")
	})

	r.GET("/healthz", func(c *gin.Context) {
		var lastBar int64
		if t := state.LastBar(); !t.IsZero() {
			lastBar = t.Unix()
		}
		c.JSON(http.StatusOK, gin.H{
			"ready":       state.Ready(),
			"mode":        state.Mode(),
			"streaming":   state.Streaming(),
			"uptimeSec":   int64(state.Uptime().Seconds()),
			"lastBarUnix": lastBar,
		})
	})

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg Config, r *gin.Engine, log *zap.Logger) {
	if !cfg.Enabled {
		return
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("[HEALTH] listening", zap.String("addr", ln.Addr().String()))
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewConfig,
			NewRouter,
		),
		fx.Invoke(RunHTTP),
	)
}
