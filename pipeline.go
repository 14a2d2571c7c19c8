package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/your-org/sales-dw-etl/transformations"
)

// Store-facing seams, satisfied by Extractor, Loader and WatermarkManager.
// Tests inject fakes to exercise run sequencing without a database.
type snapshotExtractor interface {
	Extract(ctx context.Context, watermark time.Time) (*transformations.Snapshot, error)
}

type batchLoader interface {
	Load(ctx context.Context, batch *transformations.StarBatch) (*LoadResult, error)
}

type runCursor interface {
	Watermark(ctx context.Context) time.Time
	RecordRun(ctx context.Context, status string, records int) error
	AcquireLease(ctx context.Context) error
	ReleaseLease(ctx context.Context)
}

// RunResult summarizes one pipeline run
type RunResult struct {
	Watermark time.Time     `json:"watermark"`
	Extracted int           `json:"extracted"`
	Load      *LoadResult   `json:"load"`
	Duration  time.Duration `json:"duration"`
}

// Pipeline chains extract → transform → load and advances the watermark.
// One run is strictly sequential; the poll loop never overlaps runs.
type Pipeline struct {
	config    *Config
	extractor snapshotExtractor
	loader    batchLoader
	cursor    runCursor
	stopChan  chan struct{}

	// Stats
	mu                sync.RWMutex
	runsTotal         int64
	runErrors         int64
	lastRunTime       time.Time
	lastRunDuration   time.Duration
	lastRecordsLoaded int
	lastWatermark     time.Time
}

// NewPipeline creates a new pipeline
func NewPipeline(config *Config, extractor *Extractor, loader *Loader, cursor *WatermarkManager) *Pipeline {
	return &Pipeline{
		config:    config,
		extractor: extractor,
		loader:    loader,
		cursor:    cursor,
		stopChan:  make(chan struct{}),
	}
}

// Run executes one full pipeline invocation. Exactly one audit row is
// written per invocation: SUCCESS after the load commits, FAILED on any
// stage error. A failed run never advances the watermark, so the next run
// re-extracts the same window.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	etlRunsTotal.Inc()

	log.Println("🚀 Pipeline run started")

	if err := p.cursor.AcquireLease(ctx); err != nil {
		return nil, p.failRun(ctx, start, fmt.Errorf("lease: %w", err))
	}
	defer p.cursor.ReleaseLease(ctx)

	watermark := p.cursor.Watermark(ctx)
	log.Printf("📍 Watermark: extracting records changed after %s", watermark.Format(time.DateTime))
	watermarkTimestamp.Set(float64(watermark.Unix()))

	log.Println("📦 EXTRACT: pulling reference tables and CDC window")
	extractCtx, cancelExtract := context.WithTimeout(ctx, p.config.StageTimeout())
	defer cancelExtract()
	snap, err := p.extractor.Extract(extractCtx, watermark)
	if err != nil {
		return nil, p.failRun(ctx, start, fmt.Errorf("extract: %w", err))
	}
	recordsExtractedTotal.Add(float64(snap.ChangedRecords()))
	log.Printf("📦 EXTRACT complete: %d changed records", snap.ChangedRecords())

	log.Println("🔄 TRANSFORM: denormalizing to star schema")
	batch, err := transformations.Transform(snap)
	if err != nil {
		return nil, p.failRun(ctx, start, fmt.Errorf("transform: %w", err))
	}

	log.Println("💾 LOAD: writing dimensions and facts to warehouse")
	loadCtx, cancelLoad := context.WithTimeout(ctx, p.config.StageTimeout())
	defer cancelLoad()
	loadResult, err := p.loader.Load(loadCtx, batch)
	if err != nil {
		return nil, p.failRun(ctx, start, fmt.Errorf("load: %w", err))
	}
	recordsLoadedTotal.Add(float64(loadResult.RecordsLoaded()))

	// The audit row is the commit point of the run: until it lands, the
	// watermark stays put and the window will be re-extracted.
	if err := p.cursor.RecordRun(ctx, StatusSuccess, loadResult.FactSales); err != nil {
		return nil, p.failRun(ctx, start, fmt.Errorf("audit log: %w", err))
	}

	duration := time.Since(start)
	etlRunDuration.Observe(duration.Seconds())

	p.mu.Lock()
	p.runsTotal++
	p.lastRunTime = time.Now()
	p.lastRunDuration = duration
	p.lastRecordsLoaded = loadResult.RecordsLoaded()
	p.lastWatermark = watermark
	p.mu.Unlock()

	log.Printf("✅ Pipeline run complete in %v: %d records loaded", duration.Round(time.Millisecond), loadResult.RecordsLoaded())

	return &RunResult{
		Watermark: watermark,
		Extracted: snap.ChangedRecords(),
		Load:      loadResult,
		Duration:  duration,
	}, nil
}

// failRun logs the failure, writes the FAILED audit row and returns the
// original error. The audit write runs on a fresh deadline so a stage
// timeout cannot suppress it.
func (p *Pipeline) failRun(ctx context.Context, start time.Time, runErr error) error {
	etlRunErrors.Inc()
	etlRunDuration.Observe(time.Since(start).Seconds())

	p.mu.Lock()
	p.runErrors++
	p.lastRunTime = time.Now()
	p.lastRunDuration = time.Since(start)
	p.mu.Unlock()

	log.Printf("❌ Pipeline run failed: %v", runErr)

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.cursor.RecordRun(auditCtx, StatusFailed, 0); err != nil {
		log.Printf("⚠️  Failed to record FAILED run: %v", err)
	}

	return runErr
}

// Start runs the pipeline on the poll interval until Stop is called. Each
// tick is an independent run; a failed run logs and waits for the next
// tick.
func (p *Pipeline) Start() error {
	log.Printf("🚀 Starting ETL pipeline loop (interval %v)", p.config.PollInterval())

	p.runOnce()

	ticker := time.NewTicker(p.config.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			log.Println("🛑 Pipeline loop stopped")
			return nil
		case <-ticker.C:
			p.runOnce()
		}
	}
}

// Stop signals the poll loop to exit after the current run
func (p *Pipeline) Stop() {
	close(p.stopChan)
}

func (p *Pipeline) runOnce() {
	if _, err := p.Run(context.Background()); err != nil {
		log.Printf("⏭️  Waiting for next interval after failure: %v", err)
	}
}

// GetStats returns a snapshot of pipeline statistics for the health server
func (p *Pipeline) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"runs_total":           p.runsTotal,
		"run_errors":           p.runErrors,
		"last_run_time":        p.lastRunTime,
		"last_run_duration_ms": p.lastRunDuration.Milliseconds(),
		"last_records_loaded":  p.lastRecordsLoaded,
		"last_watermark":       p.lastWatermark,
	}
}
