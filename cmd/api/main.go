package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"factor-backtest/internal/api/handlers"
	"factor-backtest/internal/api/middleware"
	"factor-backtest/internal/config"
	"factor-backtest/internal/task"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to YAML config")
	flag.Parse()

	var log *zap.Logger
	var err error
	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	sugar := log.Sugar()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		sugar.Fatalw("load config", "path", *cfgPath, "err", err)
	}

	// One tester for the whole server; handlers derive per-request views so
	// the sqlite handles are opened exactly once.
	tester, err := task.NewTester(cfg, nil, sugar)
	if err != nil {
		sugar.Fatalw("open stores", "err", err)
	}
	defer tester.Close()

	router := gin.New()
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(sugar))
	router.Use(middleware.ErrorHandler())

	backtestHandler := handlers.NewBacktestHandler(tester, sugar)
	factorHandler := handlers.NewFactorHandler(tester, sugar)
	icHandler := handlers.NewICHandler(tester, sugar)
	rebalanceHandler := handlers.NewRebalanceHandler(tester, sugar)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/factors", factorHandler.ListFactors)
		api.POST("/backtest", backtestHandler.RunBacktest)
		api.POST("/ic", icHandler.Run)
		api.POST("/rebalance", rebalanceHandler.DryRun)
	}

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	addr := fmt.Sprintf(":%s", port)
	sugar.Infow("starting API server", "addr", addr)
	if err := router.Run(addr); err != nil {
		sugar.Fatalw("server stopped", "err", err)
	}
}
