package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/dsrelay/internal/auth"
	"github.com/xelth-com/dsrelay/internal/buildinfo"
	"github.com/xelth-com/dsrelay/internal/config"
	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/database"
	"github.com/xelth-com/dsrelay/internal/delivery"
	"github.com/xelth-com/dsrelay/internal/handlers"
	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/notify"
	"github.com/xelth-com/dsrelay/internal/profile"
	"github.com/xelth-com/dsrelay/internal/resolver"
	"github.com/xelth-com/dsrelay/internal/spam"
	"github.com/xelth-com/dsrelay/internal/store"
	"github.com/xelth-com/dsrelay/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("📡 dsrelay %s (%s) as %s", buildinfo.Version, cfg.NodeEnv, cfg.Server.Name)

	// 2. Storage (Detects Embedded vs External postgres automatically)
	var st store.Store
	var db *database.DB
	switch cfg.Database.Driver {
	case "memory":
		log.Println("🧠 Mode: [Memory store] - state is lost on exit")
		st = store.NewMemoryStore()
	default:
		db, err = database.Connect(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}

		log.Println("🚀 Synchronizing database schema...")
		if err := db.AutoMigrate(store.Models()...); err != nil {
			log.Printf("⚠️ Migration warning: %v\n", err)
		} else {
			log.Println("✅ Schema synchronized successfully")
		}
		st = store.NewGormStore(db)
	}

	// 3. Service keys
	keys, err := crypto.LoadOrGenerateKeyring(cfg.Server.SigningKey, cfg.Server.EncryptionKey, cfg.Server.KeyFile)
	if err != nil {
		log.Fatalf("Failed to load service keys: %v", err)
	}
	log.Printf("🔑 Service signing key: %s", keys.PublicSigningKey())

	// 4. Names and delivery-service profiles
	dir := resolver.NewDirectory()
	if cfg.Server.ProfilesFile != "" {
		if dir, err = resolver.LoadDirectory(cfg.Server.ProfilesFile); err != nil {
			log.Fatalf("Failed to load delivery-service profiles: %v", err)
		}
	}
	if err := dir.AddDeliveryService(cfg.Server.Name, keys.Profile(cfg.Server.URL)); err != nil {
		log.Fatalf("Invalid DS_NAME %q: %v", cfg.Server.Name, err)
	}

	// 5. Chain access for spam rules
	var chain spam.ChainReader
	if cfg.Chain.RPCURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Chain.Timeout)
		ethChain, err := spam.DialChain(ctx, cfg.Chain.RPCURL, cfg.Chain.Timeout)
		cancel()
		if err != nil {
			log.Printf("⚠️ Chain: %v; rules needing chain state will reject", err)
		} else {
			defer ethChain.Close()
			chain = ethChain
			log.Printf("✅ Chain: connected to %s", cfg.Chain.RPCURL)
		}
	}

	// 6. Push channels
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	// 7. Core services
	authManager := auth.NewManager(st, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var dispatcher *notify.Dispatcher
	if cfg.SMTP.Enabled() {
		dispatcher = notify.NewDispatcher(st)
		dispatcher.Use(models.NotificationEmail, notify.NewEmailSender(cfg.SMTP))
		log.Printf("✅ Notifications: email via %s", cfg.SMTP.Host)
	}

	opts := delivery.Options{
		Keys:      keys,
		SizeLimit: cfg.Delivery.SizeLimit,
		Sessions:  st,
		Messages:  st,
		Tokens:    authManager,
		Spam:      spam.NewRuleFilter(chain, dir),
		Names:     dir,
		Push:      hub,
	}
	if dispatcher != nil {
		opts.Notify = dispatcher
	}
	pipeline := delivery.NewPipeline(opts)

	profiles := profile.NewService(st, authManager, dir, hub)
	profiles.AllowOverwrite = cfg.Auth.DisableSessionCheck
	if profiles.AllowOverwrite {
		log.Println("⚠️ DISABLE_SESSION_CHECK is set: profiles may be overwritten")
	}

	// 8. HTTP router
	router := handlers.NewRouter(handlers.Deps{
		Auth:       authManager,
		Pipeline:   pipeline,
		Profiles:   profiles,
		Messages:   st,
		Notify:     dispatcher,
		Names:      dir,
		Keys:       keys,
		Push:       websocket.NewGateway(hub, authManager, st, dir),
		ServiceURL: cfg.Server.URL,
		SizeLimit:  cfg.Delivery.SizeLimit,
		FetchLimit: cfg.Delivery.FetchLimit,
	})

	// 9. Start server with graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.WithCORS(router, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Delivery service starting on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	// Create context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Close push channels
	stopHub()

	// Close database (this also stops embedded PostgreSQL)
	if db != nil {
		log.Println("🛑 Closing database connection...")
		if err := db.Close(); err != nil {
			log.Printf("Database close error: %v", err)
		}
	}

	log.Println("✅ Shutdown complete")
}
