package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gwi.com/pdf-qa/internal/api"
	"gwi.com/pdf-qa/internal/config"
	"gwi.com/pdf-qa/internal/core"
)

func main() {
	config.LoadConfig()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg := config.AppConfig; cfg.Debug() {
		log.Println("Service starting in DEBUG mode")
		log.Printf("Config: store=%s namespace=%s chunk_size=%d top_k=%d ids=%s embed_workers=%d embed_batch=%d rate=%.1f/s",
			cfg.VectorStore, cfg.Namespace, cfg.ChunkSize, cfg.TopK, cfg.ChunkIDStrategy,
			cfg.EmbedWorkers, cfg.EmbedBatchSize, cfg.EmbedRatePerSec)
	}

	ingestPath := flag.String("ingest", "", "Ingest the given PDF file and exit")
	flag.Parse()

	services, err := core.NewServices(context.Background(), config.AppConfig)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer services.Close()

	if *ingestPath != "" {
		code := ingestFile(services, *ingestPath)
		services.Close()
		os.Exit(code)
	}

	apiHandler := api.NewAPIHandler(services.Ingestion, services.Retrieval, config.AppConfig.MaxUploadBytes())
	router := api.NewRouter(apiHandler, config.AppConfig.CORSAllowedOrigins)

	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 60 * time.Second, // uploads can be tens of MB
		// No WriteTimeout: answers are streamed for as long as the model runs.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}

// ingestFile returns the process exit code.
func ingestFile(services *core.Services, path string) int {
	log.Printf("Starting ingestion of %s...", path)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Failed to read %s: %v", path, err)
		return 1
	}

	res, err := services.Ingestion.Ingest(context.Background(), core.IngestRequest{
		Filename: filepath.Base(path),
		Data:     data,
	})
	if err != nil {
		log.Printf("Data ingestion failed: %v", err)
		return 1
	}
	log.Printf("Data ingestion complete. %s. Exiting.", res.Message)
	return 0
}
