package main

import (
	"context"
	"log"
	"os"
	"time"

	"dirchat/internal/api"
	"dirchat/internal/config"
	"dirchat/internal/crm"
	"dirchat/internal/directory"
	"dirchat/internal/redis"
	"dirchat/internal/service/chatstore"
	"dirchat/internal/service/conversation"
	"dirchat/internal/service/matcher"
	"dirchat/internal/storage"
	"dirchat/internal/sweeper"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("DIRCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("DIRCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	store := chatstore.New(db, dbType)

	cacheTTL := time.Duration(cfg.BasicConfig.DirectoryCacheMinutes) * time.Minute
	cacheOpts := []directory.Option{directory.WithTTL(cacheTTL)}
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
		cacheOpts = append(cacheOpts, directory.WithSharedStore(rdb))
	}
	dirCache := directory.NewCache(directory.NewHTTPFetcher(cfg.Directory.SourceURL), cacheOpts...)

	match, err := matcher.New(cfg)
	if err != nil {
		log.Fatalf("init matcher: %v", err)
	}
	exporter := crm.New(cfg.CRM.WebhookURL)

	convService := conversation.NewService(store, dirCache, match, exporter)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	window := time.Duration(cfg.BasicConfig.InactivityMinutes) * time.Minute
	interval := time.Duration(cfg.BasicConfig.SweepIntervalSeconds) * time.Second
	sweeper.New(store, exporter, window).Start(sweepCtx, interval)

	handlers := api.NewHandler(convService)
	router := gin.Default()
	router.Use(api.RequestID(), api.RequestLogger())
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
