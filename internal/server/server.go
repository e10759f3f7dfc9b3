package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/loopback-hub/loopback/config"
	"github.com/loopback-hub/loopback/internal/knowledge"
	"github.com/loopback-hub/loopback/internal/runtime"
	"github.com/loopback-hub/loopback/internal/store"
	"github.com/loopback-hub/loopback/internal/triage"
	"github.com/loopback-hub/loopback/internal/watsonx"
)

func Run(addr string, cfgPath string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	cfg := config.LoadConfig(cfgPath)
	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		log.Printf("migrations not applied: %v", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	tokens := watsonx.NewTokenSource(cfg.Watsonx.APIKey, cfg.Watsonx.TokenURL, cfg.Watsonx.Timeout)
	runLogger := log.New(log.Writer(), "[RUN] ", log.LstdFlags)
	agent := watsonx.NewClient(cfg.Watsonx, cfg.Triage, tokens, runLogger)
	gen := watsonx.NewGenerationClient(cfg.Watsonx)
	groupLogger := log.New(log.Writer(), "[GROUP] ", log.LstdFlags)
	grouper := triage.NewGrouper(gen, cfg.Triage.CandidateLimit, groupLogger)

	kbLogger := log.New(log.Writer(), "[KB] ", log.LstdFlags)
	index := knowledge.NewIndex(cfg.Knowledge.Dir, kbLogger)
	if err := index.Reindex(); err != nil {
		kbLogger.Printf("initial reindex failed: %v", err)
	}

	lock := &MutationLock{Rdb: rdb, Logger: baseLogger}

	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(e.Group("/auth"))

	th := &TicketsHandler{
		Store:          st,
		Tokens:         tokens,
		Grouper:        grouper,
		Lock:           lock,
		CandidateLimit: cfg.Triage.CandidateLimit,
		Logger:         log.New(log.Writer(), "[TICKETS] ", log.LstdFlags),
	}
	th.Register(e, secret)

	ah := &AskHandler{Client: agent, Logger: runLogger}
	ah.Register(e)

	kh := &KnowledgeHandler{Index: index, MaxResults: cfg.Knowledge.MaxResults, Logger: kbLogger}
	kh.Register(e)

	sched := &Scheduler{
		Index:  index,
		Cron:   cfg.Knowledge.ReindexCron,
		Rdb:    rdb,
		Stop:   make(chan struct{}),
		Logger: kbLogger,
	}
	sched.Start()

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":8000"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
