// Command mozzaic-server accepts video uploads over HTTP and returns the
// pixelated result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/mozzaic/internal/api"
	"github.com/banshee-data/mozzaic/internal/config"
	"github.com/banshee-data/mozzaic/internal/db"
	"github.com/banshee-data/mozzaic/internal/version"
)

var (
	devMode      = flag.Bool("dev", false, "Keep uploads, outputs and the run database in a fresh temporary directory")
	listen       = flag.String("listen", ":8000", "Listen address")
	configPath   = flag.String("config", "", "JSON config file")
	dbPath       = flag.String("db", "mozzaic.db", "SQLite run history database (empty disables history)")
	uploadDir    = flag.String("upload-dir", "", "Directory for incoming uploads (overrides config)")
	processedDir = flag.String("processed-dir", "", "Directory for processed videos (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// shutdownTimeout bounds how long in-flight uploads may keep running after
// a signal.
const shutdownTimeout = 30 * time.Second

// loadConfig applies the config file and directory flags over the defaults.
func loadConfig(path, uploads, processed string) (*config.PixelateConfig, error) {
	cfg := config.DefaultPixelateConfig()
	if path != "" {
		fileCfg, err := config.LoadPixelateConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	override := config.EmptyPixelateConfig()
	if uploads != "" {
		override.UploadDir = &uploads
	}
	if processed != "" {
		override.ProcessedDir = &processed
	}
	cfg = cfg.Merge(override)
	return cfg, cfg.Validate()
}

// devPaths roots every storage location in a new temporary directory.
func devPaths() (uploads, processed, database string, err error) {
	root, err := os.MkdirTemp("", "mozzaic-dev-")
	if err != nil {
		return "", "", "", err
	}
	return filepath.Join(root, "uploads"), filepath.Join(root, "processed"), filepath.Join(root, "mozzaic.db"), nil
}

func newHandler(cfg *config.PixelateConfig, database *db.DB) (http.Handler, error) {
	mux := api.NewServer(cfg, database).ServeMux()
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return api.LoggingMiddleware(mux), nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	uploads, processed, historyPath := *uploadDir, *processedDir, *dbPath
	if *devMode {
		var err error
		uploads, processed, historyPath, err = devPaths()
		if err != nil {
			log.Fatalf("failed to create dev directory: %v", err)
		}
		log.Printf("dev mode: storing data under %s", filepath.Dir(historyPath))
	}

	cfg, err := loadConfig(*configPath, uploads, processed)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var database *db.DB
	if historyPath != "" {
		database, err = db.NewDB(historyPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	}

	handler, err := newHandler(cfg, database)
	if err != nil {
		log.Fatalf("failed to build routes: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              *listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("%s listening on %s", version.String(), *listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
