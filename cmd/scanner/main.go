package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/digimosa/cpf-portal-scan/internal/config"
	"github.com/digimosa/cpf-portal-scan/internal/downloader"
	"github.com/digimosa/cpf-portal-scan/internal/obs"
	"github.com/digimosa/cpf-portal-scan/internal/portal"
	"github.com/digimosa/cpf-portal-scan/internal/progress"
	"github.com/digimosa/cpf-portal-scan/internal/retry"
	"github.com/digimosa/cpf-portal-scan/internal/scanner"
	"github.com/digimosa/cpf-portal-scan/internal/storage"
)

func main() {
	// Parse CLI flags; they override env/.env values.
	portalURL := flag.String("portal", "", "Base URL of the CKAN portal (e.g. https://dados.example.gov.br)")
	apiKey := flag.String("api-key", "", "Optional CKAN API key; anonymous when empty")
	dbPath := flag.String("db", "", "Path to the SQLite findings database")
	statusFile := flag.String("status-file", "", "Write a JSON progress snapshot to this path after every resource")
	cacheDir := flag.String("cache-dir", "", "Directory for cached dataset details")
	workers := flag.Int("workers", 0, "Concurrent resource downloads per dataset (default: sequential)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	cfg := config.Load()
	if *portalURL != "" {
		cfg.PortalURL = *portalURL
	}
	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *statusFile != "" {
		cfg.StatusFile = *statusFile
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	cfg.Verbose = *verbose

	if cfg.PortalURL == "" {
		fmt.Println("No portal configured.")
		fmt.Println("Use -portal or set PORTAL_URL to point at a CKAN instance.")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("Initializing database at: %s\n", cfg.DBPath)
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		fmt.Printf("[ERROR] Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	obs.Init()
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obs.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Printf("[ERROR] metrics server: %v\n", err)
			}
		}()
	}

	policy := retry.NewPolicy(cfg.MaxRetries)

	client := portal.NewClient(portal.Options{
		BaseURL:  cfg.PortalURL,
		APIKey:   cfg.APIKey,
		CacheDir: cfg.CacheDir,
		CacheTTL: cfg.CacheTTL,
		Policy:   policy,
		Verbose:  cfg.Verbose,
	})

	dl := downloader.New(downloader.Options{
		Timeout:      cfg.DownloadTimeout,
		MaxRedirects: cfg.MaxRedirects,
		UserAgent:    cfg.UserAgent,
		MaxFileSize:  cfg.MaxFileSize,
		DiskMargin:   cfg.DiskSpaceMargin,
		Verbose:      cfg.Verbose,
	})

	summary := &progress.MemorySink{}
	var sink progress.Sink = summary
	if cfg.StatusFile != "" {
		sink = progress.Fanout(summary, progress.NewFileSink(cfg.StatusFile))
	}

	s := scanner.New(client, store, dl, sink, scanner.Options{
		Workers: cfg.Workers,
		Policy:  policy,
		Verbose: cfg.Verbose,
	})

	// Ctrl+C stops after the in-flight resource.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting CPF scan on: %s\n", cfg.PortalURL)
	fmt.Printf("Workers: %d\n", cfg.Workers)

	start := time.Now()
	final, err := s.Scan(ctx)
	if err != nil {
		fmt.Printf("\n[ERROR] Scan ended with: %v\n", err)
	}

	fmt.Printf("\nScan %s in %s\n", final.Status, time.Since(start).Round(time.Second))
	fmt.Printf("  Datasets processed:      %d\n", final.DatasetsProcessed)
	fmt.Printf("  Resources processed:     %d\n", final.ResourcesProcessed)
	fmt.Printf("  Resources with findings: %d\n", final.ResourcesWithFindings)
	fmt.Printf("  Resources skipped:       %d\n", final.ResourcesSkipped)
	fmt.Printf("  Resource errors:         %d\n", final.ResourceErrors)
	fmt.Printf("  Valid CPFs persisted:    %d\n", final.TotalCPFs)

	if err != nil {
		os.Exit(1)
	}
}
