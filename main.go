package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hrchat/internal/api"
	"hrchat/internal/chat"
	"hrchat/internal/cleanup"
	"hrchat/internal/config"
	"hrchat/internal/filestore"
	"hrchat/internal/llm"
	"hrchat/internal/metrics"
	"hrchat/internal/ratelimit"
	"hrchat/internal/redis"
	"hrchat/internal/search"
	"hrchat/internal/session"
)

func main() {
	cfgPath := os.Getenv("HRCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	registry := session.NewRegistry(cfg.Limits.MaxSessions, cfg.Limits.MaxTurns)
	files := filestore.NewStore(cfg.Limits.MaxUploadBytes, cfg.Limits.SessionQuotaBytes, nil)
	// a session forced out by the cap takes its files with it
	registry.OnEvict(func(id string) {
		if n := files.Clear(id); n > 0 {
			log.Printf("evicted session %s dropped %d files", id, n)
		}
	})

	searcher := search.NewClient(cfg.Search)
	if !searcher.Enabled() {
		log.Printf("search not configured, answers fall back to the model alone")
	}

	provider := cfg.Server.Provider
	completer, err := llm.NewClient(context.Background(), provider, cfg.Providers[provider])
	if err != nil {
		log.Fatalf("init completion client: %v", err)
	}
	log.Printf("completion client: %s", completer.Describe())

	selector := chat.NewSelector(files, searcher, cfg.Limits.ContextTokenBudget, cfg.Search.TopK, cfg.Limits.SearchSnippets)
	orch := chat.NewOrchestrator(registry, files, selector, completer, searcher, cfg.Limits.HistoryWindow, 60*time.Second)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweeper := cleanup.NewSweeper(registry, files,
		time.Duration(cfg.Cleanup.SweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.SessionMaxAgeMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.FileMaxAgeMinutes)*time.Minute)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promReg, func() float64 { return float64(registry.Len()) })
	sweeper.OnSweep(func(sessions, swept int) {
		m.SweptSessions.Add(float64(sessions))
		m.SweptFiles.Add(float64(swept))
	})
	sweeper.Start(sweepCtx)

	// counters shared across replicas when redis is reachable
	var counter ratelimit.Counter
	if rdb, err := redis.NewClient(cfg.Redis); err != nil {
		log.Printf("redis unavailable, rate limits are per process: %v", err)
	} else {
		defer rdb.Close()
		counter = rdb
	}
	limiter := ratelimit.New(counter, time.Minute)

	handlers := api.NewHandler(orch, registry, files, sweeper, limiter, m, cfg.Limits)

	router := gin.Default()
	router.MaxMultipartMemory = cfg.Limits.MaxUploadBytes
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	handlers.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	if cfg.Server.StaticDir != "" {
		router.NoRoute(func(c *gin.Context) {
			if c.Request.Method == http.MethodGet {
				c.File(cfg.Server.StaticDir + "/index.html")
				return
			}
			c.Status(http.StatusNotFound)
		})
		router.Static("/static", cfg.Server.StaticDir)
	}

	if err := router.Run(cfg.Server.Address); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
