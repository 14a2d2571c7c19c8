package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/your-org/sales-dw-etl/transformations"
)

// Phase runners let extract, transform and load be invoked out-of-process
// from one another for replay and debugging. Each phase persists its output
// to a phase-tagged, timestamped JSON snapshot that the next phase can read.

const snapshotTimeFormat = "20060102_150405"

func snapshotPath(dir, phase string) string {
	name := fmt.Sprintf("phase_output_%s_%s.json", phase, time.Now().Format(snapshotTimeFormat))
	return filepath.Join(dir, name)
}

func savePhaseOutput(dir, phase string, v any) (string, error) {
	path := snapshotPath(dir, phase)

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s output: %w", phase, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s output: %w", phase, err)
	}

	log.Printf("💾 %s phase output saved: %s", phase, path)
	return path, nil
}

func loadPhaseOutput(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read phase output: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse phase output %s: %w", path, err)
	}
	log.Printf("📂 Phase output loaded: %s", path)
	return nil
}

// RunExtractPhase reads the watermark, extracts one CDC window and writes
// the snapshot file.
func (p *Pipeline) RunExtractPhase(ctx context.Context) (string, error) {
	watermark := p.cursor.Watermark(ctx)
	log.Printf("📍 Watermark: extracting records changed after %s", watermark.Format(time.DateTime))

	extractCtx, cancel := context.WithTimeout(ctx, p.config.StageTimeout())
	defer cancel()
	snap, err := p.extractor.Extract(extractCtx, watermark)
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	log.Printf("📦 EXTRACT complete: %d changed records", snap.ChangedRecords())

	return savePhaseOutput(p.config.ETL.SnapshotDir, "extract", snap)
}

// RunTransformPhase loads an extract snapshot, transforms it and writes the
// star batch snapshot.
func (p *Pipeline) RunTransformPhase(inputPath string) (string, error) {
	var snap transformations.Snapshot
	if err := loadPhaseOutput(inputPath, &snap); err != nil {
		return "", err
	}

	batch, err := transformations.Transform(&snap)
	if err != nil {
		return "", fmt.Errorf("transform: %w", err)
	}

	return savePhaseOutput(p.config.ETL.SnapshotDir, "transform", batch)
}

// RunLoadPhase loads a transform snapshot into the warehouse. As the
// terminal phase it performs the audit-log write on both paths.
func (p *Pipeline) RunLoadPhase(ctx context.Context, inputPath string) (*LoadResult, error) {
	var batch transformations.StarBatch
	if err := loadPhaseOutput(inputPath, &batch); err != nil {
		return nil, err
	}

	loadCtx, cancel := context.WithTimeout(ctx, p.config.StageTimeout())
	defer cancel()
	result, err := p.loader.Load(loadCtx, &batch)
	if err != nil {
		auditCtx, cancelAudit := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancelAudit()
		if auditErr := p.cursor.RecordRun(auditCtx, StatusFailed, 0); auditErr != nil {
			log.Printf("⚠️  Failed to record FAILED run: %v", auditErr)
		}
		return nil, fmt.Errorf("load: %w", err)
	}

	if err := p.cursor.RecordRun(ctx, StatusSuccess, result.FactSales); err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}

	log.Printf("✅ LOAD complete: %d records loaded", result.RecordsLoaded())
	return result, nil
}
