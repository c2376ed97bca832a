package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cliproom/cliproom/internal/api"
	"github.com/cliproom/cliproom/internal/blob"
	"github.com/cliproom/cliproom/internal/clipboard"
	"github.com/cliproom/cliproom/internal/config"
	"github.com/cliproom/cliproom/internal/server"
	"github.com/cliproom/cliproom/internal/stats"
	"github.com/cliproom/cliproom/internal/store"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	storeBackend   string
	redisAddr      string
	redisPassword  string
	uploadDir      string
	allowedOrigins stringSliceFlag
)

func main() {
	// .env is optional; flags override whatever it sets.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("load .env:", err)
	}

	flag.StringVar(&addr, "addr", envOr("CLIPROOM_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&storeBackend, "store", envOr("CLIPROOM_STORE", config.StoreRedis), "room store backend (redis or memory)")
	flag.StringVar(&redisAddr, "redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "redis address")
	flag.StringVar(&redisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "redis password")
	flag.StringVar(&uploadDir, "upload-dir", envOr("CLIPROOM_UPLOAD_DIR", "uploads"), "directory for uploaded files")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[cliproom] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, storeBackend, redisAddr, redisPassword, uploadDir, allowedOrigins)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	var roomStore store.RoomStore
	switch cfg.StoreBackend {
	case config.StoreRedis:
		roomStore, err = store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis store: ", err)
		}
	case config.StoreMemory:
		logger.Println("using in-memory room store; rooms are lost on restart")
		roomStore = store.NewMemoryStore()
	}
	defer func() {
		if err := roomStore.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	blobStore, err := blob.NewDiskStore(logger, cfg.UploadDir)
	if err != nil {
		logger.Fatal("blob store: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	manager := clipboard.NewManager(logger, roomStore)

	gateway, err := server.NewGatewayServer(logger, manager, server.NewRegistry(), statsUpdater)
	if err != nil {
		logger.Fatal("new gateway server: ", err)
	}

	srv := api.NewCliproomApp(mux, logger, gateway, manager, blobStore, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go gateway.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down gateway...")
	if err := gateway.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("gateway shutdown:", err)
	}

	logger.Println("shutdown complete")
}
