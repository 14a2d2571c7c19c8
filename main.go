package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	mode := flag.String("mode", "full", "Pipeline mode: full, extract, transform, load")
	input := flag.String("input", "", "Phase snapshot file to read (transform and load modes)")
	once := flag.Bool("once", false, "Run a single full pipeline pass and exit")
	flag.Parse()

	log.Println("🔧 Loading configuration from", *configPath)

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("📋 Service: %s", config.Service.Name)
	log.Printf("📋 Poll interval: %v", config.PollInterval())
	log.Printf("📋 Chunk size: %d rows", config.ETL.ChunkSize)

	// Connect to the operational store (PostgreSQL)
	log.Println("🔗 Connecting to operational store...")
	oltpDB, err := sql.Open("postgres", config.OLTP.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to open operational store: %v", err)
	}
	defer oltpDB.Close()

	if err := oltpDB.Ping(); err != nil {
		log.Fatalf("Failed to ping operational store: %v", err)
	}
	log.Println("✅ Connected to operational store")

	// Connect to the warehouse (MySQL)
	log.Println("🔗 Connecting to warehouse...")
	dwDB, err := sql.Open("mysql", config.Warehouse.DSN())
	if err != nil {
		log.Fatalf("Failed to open warehouse: %v", err)
	}
	defer dwDB.Close()

	if err := dwDB.Ping(); err != nil {
		log.Fatalf("Failed to ping warehouse: %v", err)
	}
	log.Println("✅ Connected to warehouse")

	// Initialize components
	extractor := NewExtractor(oltpDB)
	loader := NewLoader(dwDB, config.ETL.ChunkSize)
	cursor := NewWatermarkManager(dwDB)

	ctx := context.Background()
	if err := cursor.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize audit log: %v", err)
	}
	if err := loader.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize warehouse tables: %v", err)
	}

	pipeline := NewPipeline(config, extractor, loader, cursor)

	switch *mode {
	case "extract":
		path, err := pipeline.RunExtractPhase(ctx)
		if err != nil {
			log.Fatalf("Extract phase failed: %v", err)
		}
		log.Printf("👉 Next: -mode transform -input %s", path)
		return

	case "transform":
		if *input == "" {
			log.Fatal("transform mode requires -input <extract snapshot>")
		}
		path, err := pipeline.RunTransformPhase(*input)
		if err != nil {
			log.Fatalf("Transform phase failed: %v", err)
		}
		log.Printf("👉 Next: -mode load -input %s", path)
		return

	case "load":
		if *input == "" {
			log.Fatal("load mode requires -input <transform snapshot>")
		}
		if _, err := pipeline.RunLoadPhase(ctx, *input); err != nil {
			log.Fatalf("Load phase failed: %v", err)
		}
		return

	case "full":
		// handled below

	default:
		log.Fatalf("Unknown mode %q", *mode)
	}

	if *once {
		if _, err := pipeline.Run(ctx); err != nil {
			log.Fatalf("Pipeline run failed: %v", err)
		}
		return
	}

	// Start health server in goroutine
	healthServer := NewHealthServer(pipeline, config.Service.Name)
	go func() {
		if err := healthServer.Start(config.Service.HealthPort); err != nil {
			log.Fatalf("Health server failed: %v", err)
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("🛑 Shutdown signal received...")
		pipeline.Stop()
	}()

	// Run the poll loop (blocks until stopped)
	if err := pipeline.Start(); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	log.Println("👋 Shutdown complete")
}
