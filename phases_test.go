package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/your-org/sales-dw-etl/transformations"
)

func TestPhaseOutput_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	snap := &transformations.Snapshot{
		Watermark: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Customers: []transformations.Customer{{CustomerID: "CUST-1", CustomerName: "Ada"}},
		Orders: []transformations.Order{
			{OrderID: "ORD-1", CustomerID: "CUST-1", OrderDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		},
	}

	path, err := savePhaseOutput(dir, "extract", snap)
	if err != nil {
		t.Fatalf("savePhaseOutput failed: %v", err)
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "phase_output_extract_") || !strings.HasSuffix(base, ".json") {
		t.Errorf("unexpected snapshot filename %q", base)
	}

	var got transformations.Snapshot
	if err := loadPhaseOutput(path, &got); err != nil {
		t.Fatalf("loadPhaseOutput failed: %v", err)
	}

	if len(got.Customers) != 1 || got.Customers[0].CustomerID != "CUST-1" {
		t.Errorf("customers did not round-trip: %+v", got.Customers)
	}
	if !got.Watermark.Equal(snap.Watermark) {
		t.Errorf("watermark did not round-trip: %v", got.Watermark)
	}
	if len(got.Orders) != 1 || !got.Orders[0].OrderDate.Equal(snap.Orders[0].OrderDate) {
		t.Errorf("orders did not round-trip: %+v", got.Orders)
	}
}

func TestLoadPhaseOutput_MissingFile(t *testing.T) {
	var snap transformations.Snapshot
	if err := loadPhaseOutput(filepath.Join(t.TempDir(), "nope.json"), &snap); err == nil {
		t.Error("expected error for missing snapshot file")
	}
}

func TestRunTransformPhase_FromSnapshotFile(t *testing.T) {
	dir := t.TempDir()

	snap := &transformations.Snapshot{
		Customers: []transformations.Customer{{CustomerID: "CUST-1"}},
	}
	inputPath, err := savePhaseOutput(dir, "extract", snap)
	if err != nil {
		t.Fatalf("savePhaseOutput failed: %v", err)
	}

	p := testPipeline(&fakeExtractor{}, &fakeLoader{}, &fakeCursor{})
	p.config.ETL.SnapshotDir = dir

	outputPath, err := p.RunTransformPhase(inputPath)
	if err != nil {
		t.Fatalf("RunTransformPhase failed: %v", err)
	}

	var batch transformations.StarBatch
	if err := loadPhaseOutput(outputPath, &batch); err != nil {
		t.Fatalf("failed to read transform snapshot: %v", err)
	}
	if len(batch.DimCustomer) != 1 {
		t.Errorf("expected 1 dim_customer row, got %d", len(batch.DimCustomer))
	}
	if batch.FactSales == nil {
		t.Error("empty facts must serialize as present, empty tables")
	}
}

func TestRunLoadPhase_RecordsAudit(t *testing.T) {
	dir := t.TempDir()

	batch := &transformations.StarBatch{
		DimDate:     []transformations.DateRow{},
		DimCustomer: []transformations.CustomerRow{},
		DimProduct:  []transformations.ProductRow{},
		DimReturn:   []transformations.ReturnRow{},
		FactSales:   []transformations.SalesFact{},
		FactReturn:  []transformations.ReturnFact{},
	}
	inputPath, err := savePhaseOutput(dir, "transform", batch)
	if err != nil {
		t.Fatalf("savePhaseOutput failed: %v", err)
	}

	cursor := &fakeCursor{}
	loader := &fakeLoader{result: &LoadResult{FactSales: 3}}
	p := testPipeline(&fakeExtractor{}, loader, cursor)

	if _, err := p.RunLoadPhase(context.Background(), inputPath); err != nil {
		t.Fatalf("RunLoadPhase failed: %v", err)
	}

	if len(cursor.runs) != 1 || cursor.runs[0].status != StatusSuccess || cursor.runs[0].records != 3 {
		t.Errorf("expected one SUCCESS audit write with 3 records, got %+v", cursor.runs)
	}
}

func TestRunLoadPhase_FailureRecordsFailed(t *testing.T) {
	dir := t.TempDir()

	inputPath, err := savePhaseOutput(dir, "transform", &transformations.StarBatch{})
	if err != nil {
		t.Fatalf("savePhaseOutput failed: %v", err)
	}

	cursor := &fakeCursor{}
	loader := &fakeLoader{err: errors.New("constraint violation")}
	p := testPipeline(&fakeExtractor{}, loader, cursor)

	if _, err := p.RunLoadPhase(context.Background(), inputPath); err == nil {
		t.Fatal("expected error from failed load phase")
	}

	if len(cursor.runs) != 1 || cursor.runs[0].status != StatusFailed {
		t.Errorf("expected one FAILED audit write, got %+v", cursor.runs)
	}
}
