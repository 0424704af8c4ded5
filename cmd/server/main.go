package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctchen222/Battleship/internal/api/controller"
	apirepository "ctchen222/Battleship/internal/api/repository"
	"ctchen222/Battleship/internal/api/service"
	"ctchen222/Battleship/internal/config"
	"ctchen222/Battleship/internal/db"
	"ctchen222/Battleship/internal/events"
	"ctchen222/Battleship/internal/logger"
	"ctchen222/Battleship/internal/monitor"
	"ctchen222/Battleship/internal/registry"
	"ctchen222/Battleship/internal/repository"
	"ctchen222/Battleship/internal/server"
	"ctchen222/Battleship/internal/session"
	"ctchen222/Battleship/internal/telemetry"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry
	shutdown, err := telemetry.InitOtel(ctx, telemetry.Options{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize SQLite DB
	DB, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open sqlite db: %v", err)
	}
	defer DB.Close()
	if err := db.Migrate(ctx, DB); err != nil {
		log.Fatalf("failed to migrate sqlite db: %v", err)
	}

	// Redis is optional; without it events are dropped and history stays in memory.
	publisher := events.NewNopPublisher()
	presence := repository.NewNopPresenceRepository()
	history := repository.NewMemoryHistoryRepository()
	if cfg.Redis.Addr != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatalf("failed to initialize redis: %v", err)
		}
		defer rdb.Close()
		publisher = events.NewRedisPublisher(rdb)
		presence = repository.NewPresenceRepository(rdb)
		history = repository.NewHistoryRepository(rdb)
	}

	// Create repositories and services
	userRepo := apirepository.NewUserRepository(DB, cfg.Auth.BcryptCost)
	userService := service.NewUserService(userRepo, service.Options{
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  cfg.Auth.TokenTTL,
	})
	if cfg.Auth.AdminUser != "" {
		if err := userService.EnsureAdmin(ctx, cfg.Auth.AdminUser, cfg.Auth.AdminPassword); err != nil {
			log.Fatalf("failed to provision admin account: %v", err)
		}
	}

	// Game state
	monitors := monitor.NewBroadcaster(publisher)
	rooms := registry.New(registry.Options{
		MaxMatches: cfg.Game.MaxMatches,
		Recorder:   userService,
		Publisher:  publisher,
		Notifier:   monitors,
		History:    history,
	})
	sessions := session.NewHandler(session.Options{
		Auth:     userService,
		Rooms:    rooms,
		Monitors: monitors,
		Presence: presence,
	})

	srv := server.NewServer(ctx, sessions,
		controller.NewUserController(userService),
		controller.NewRoomController(rooms, history, presence),
	)

	ln, err := net.Listen("tcp", cfg.Server.TCPAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.Server.TCPAddr, err)
	}
	go func() {
		if err := srv.ServeTCP(ln); err != nil {
			log.Fatalf("ServeTCP: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: srv.Engine(),
	}
	go func() {
		slog.Info("http server started", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := srv.CloseSessions(shutdownCtx); err != nil {
		slog.Error("Sessions did not drain", "error", err)
	}

	slog.Info("Server exiting")
}
