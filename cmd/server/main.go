package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"streamwatch/internal/auth"
	"streamwatch/internal/config"
	"streamwatch/internal/handler"
	"streamwatch/internal/notify"
	"streamwatch/internal/push"
	"streamwatch/internal/repository"
	"streamwatch/internal/service"
	"streamwatch/internal/tmdb"
)

func main() {
	// Parse CLI flags
	scanMode := flag.Bool("scan", false, "Run one new-episode scan and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	db, err := repository.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	entryRepo := repository.NewWatchEntryRepository(db)
	subRepo := repository.NewPushSubscriptionRepository(db)

	// Initialize metadata client
	tmdbClient := tmdb.NewClient(cfg.MetadataAPIURL, cfg.MetadataAPIToken)

	// Initialize the notification pipeline
	sender := push.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	dispatcher := service.NewDispatcher(sender, subRepo)
	diffEngine := service.NewDiffEngine(tmdbClient)
	scanSvc := service.NewScanService(userRepo, entryRepo, subRepo, diffEngine, dispatcher, tmdbClient)

	// CLI mode: run one scan and exit
	if *scanMode {
		result, err := scanSvc.Run()
		if err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("Scan completed: %d users checked, %d new episodes, %d notifications sent\n",
			result.UsersChecked, result.NewEpisodes, result.NotificationsSent)
		return
	}

	// Optional Telegram admin report
	var reporter service.ScanReporter
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegramReporter(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("Warning: telegram reporter disabled: %v", err)
		} else {
			reporter = tg
		}
	}

	// Initialize scheduler
	scheduler := service.NewScheduler(scanSvc, reporter, cfg.ScanTime)
	scheduler.Start()

	// Initialize HTTP server
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiry)
	h := handler.NewHandler(userRepo, subRepo, scanSvc, tokens, cfg.ScanSharedSecret)

	r := gin.Default()
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		log.Printf("streamwatch server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
