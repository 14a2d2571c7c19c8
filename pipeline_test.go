package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/your-org/sales-dw-etl/transformations"
)

type fakeExtractor struct {
	snap         *transformations.Snapshot
	err          error
	gotWatermark time.Time
	calls        int
}

func (f *fakeExtractor) Extract(ctx context.Context, watermark time.Time) (*transformations.Snapshot, error) {
	f.calls++
	f.gotWatermark = watermark
	return f.snap, f.err
}

type fakeLoader struct {
	result *LoadResult
	err    error
	calls  int
}

func (f *fakeLoader) Load(ctx context.Context, batch *transformations.StarBatch) (*LoadResult, error) {
	f.calls++
	return f.result, f.err
}

type recordedRun struct {
	status  string
	records int
}

type fakeCursor struct {
	watermark time.Time
	leaseErr  error
	runs      []recordedRun
	released  int
}

func (f *fakeCursor) Watermark(ctx context.Context) time.Time { return f.watermark }

func (f *fakeCursor) RecordRun(ctx context.Context, status string, records int) error {
	f.runs = append(f.runs, recordedRun{status, records})
	return nil
}

func (f *fakeCursor) AcquireLease(ctx context.Context) error { return f.leaseErr }
func (f *fakeCursor) ReleaseLease(ctx context.Context)       { f.released++ }

func testPipeline(e *fakeExtractor, l *fakeLoader, c *fakeCursor) *Pipeline {
	return &Pipeline{
		config: &Config{
			Service: ServiceConfig{PollIntervalSeconds: 300, StageTimeoutSeconds: 60},
			ETL:     ETLConfig{ChunkSize: 1000, SnapshotDir: "."},
		},
		extractor: e,
		loader:    l,
		cursor:    c,
		stopChan:  make(chan struct{}),
	}
}

func emptySnapshot() *transformations.Snapshot {
	return &transformations.Snapshot{}
}

func TestRun_FirstRunUsesSentinelWatermark(t *testing.T) {
	sentinel := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	extractor := &fakeExtractor{snap: &transformations.Snapshot{
		Customers: []transformations.Customer{{CustomerID: "CUST-1"}},
		Orders: []transformations.Order{
			{OrderID: "ORD-1", CustomerID: "CUST-1", OrderDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		},
	}}
	loader := &fakeLoader{result: &LoadResult{FactSales: 0}}
	cursor := &fakeCursor{watermark: sentinel}

	result, err := testPipeline(extractor, loader, cursor).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !extractor.gotWatermark.Equal(sentinel) {
		t.Errorf("extractor received watermark %v, want sentinel", extractor.gotWatermark)
	}
	if result.Extracted != 1 {
		t.Errorf("Extracted = %d, want 1", result.Extracted)
	}
	if len(cursor.runs) != 1 {
		t.Fatalf("expected exactly 1 audit write, got %d", len(cursor.runs))
	}
	if cursor.runs[0].status != StatusSuccess {
		t.Errorf("audit status = %s, want SUCCESS", cursor.runs[0].status)
	}
	if cursor.released != 1 {
		t.Errorf("lease released %d times, want 1", cursor.released)
	}
}

func TestRun_SuccessRecordsFactSalesCount(t *testing.T) {
	extractor := &fakeExtractor{snap: emptySnapshot()}
	loader := &fakeLoader{result: &LoadResult{FactSales: 42, FactReturn: 7}}
	cursor := &fakeCursor{watermark: time.Now()}

	if _, err := testPipeline(extractor, loader, cursor).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(cursor.runs) != 1 {
		t.Fatalf("expected exactly 1 audit write, got %d", len(cursor.runs))
	}
	if cursor.runs[0].records != 42 {
		t.Errorf("audit record count = %d, want fact_sales count 42", cursor.runs[0].records)
	}
}

func TestRun_EmptyWindowSucceedsWithZeroRecords(t *testing.T) {
	extractor := &fakeExtractor{snap: emptySnapshot()}
	loader := &fakeLoader{result: &LoadResult{}}
	cursor := &fakeCursor{watermark: time.Now()}

	result, err := testPipeline(extractor, loader, cursor).Run(context.Background())
	if err != nil {
		t.Fatalf("empty window must not fail: %v", err)
	}

	if result.Load.RecordsLoaded() != 0 {
		t.Errorf("RecordsLoaded = %d, want 0", result.Load.RecordsLoaded())
	}
	if loader.calls != 1 {
		t.Errorf("loader called %d times, want 1 (no branching on empty window)", loader.calls)
	}
	if cursor.runs[0].status != StatusSuccess {
		t.Errorf("audit status = %s, want SUCCESS", cursor.runs[0].status)
	}
}

func TestRun_ExtractFailureRecordsFailedAndSkipsLoad(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("connection refused")}
	loader := &fakeLoader{result: &LoadResult{}}
	cursor := &fakeCursor{watermark: time.Now()}

	if _, err := testPipeline(extractor, loader, cursor).Run(context.Background()); err == nil {
		t.Fatal("expected error from failed extract")
	}

	if loader.calls != 0 {
		t.Errorf("loader called %d times after extract failure, want 0", loader.calls)
	}
	if len(cursor.runs) != 1 {
		t.Fatalf("expected exactly 1 audit write, got %d", len(cursor.runs))
	}
	if cursor.runs[0].status != StatusFailed || cursor.runs[0].records != 0 {
		t.Errorf("audit = %+v, want FAILED with 0 records", cursor.runs[0])
	}
	if cursor.released != 1 {
		t.Errorf("lease released %d times, want 1", cursor.released)
	}
}

func TestRun_TransformFailureRecordsFailed(t *testing.T) {
	// Line item with no parent order in the window is a fatal transform error
	extractor := &fakeExtractor{snap: &transformations.Snapshot{
		OrderItems: []transformations.OrderItem{
			{OrderID: "ORD-MISSING", ProductID: "PROD-1", ShipDate: time.Now()},
		},
	}}
	loader := &fakeLoader{result: &LoadResult{}}
	cursor := &fakeCursor{watermark: time.Now()}

	if _, err := testPipeline(extractor, loader, cursor).Run(context.Background()); err == nil {
		t.Fatal("expected error from failed transform")
	}

	if loader.calls != 0 {
		t.Errorf("loader called after transform failure")
	}
	if len(cursor.runs) != 1 || cursor.runs[0].status != StatusFailed {
		t.Errorf("expected exactly one FAILED audit write, got %+v", cursor.runs)
	}
}

func TestRun_LoadFailureRecordsFailed(t *testing.T) {
	extractor := &fakeExtractor{snap: emptySnapshot()}
	loader := &fakeLoader{err: errors.New("partition missing for target range")}
	cursor := &fakeCursor{watermark: time.Now()}

	if _, err := testPipeline(extractor, loader, cursor).Run(context.Background()); err == nil {
		t.Fatal("expected error from failed load")
	}

	if len(cursor.runs) != 1 {
		t.Fatalf("expected exactly 1 audit write, got %d", len(cursor.runs))
	}
	if cursor.runs[0].status != StatusFailed {
		t.Errorf("audit status = %s, want FAILED", cursor.runs[0].status)
	}
	if cursor.released != 1 {
		t.Errorf("lease released %d times, want 1", cursor.released)
	}
}

func TestRun_LeaseHeldFailsFast(t *testing.T) {
	extractor := &fakeExtractor{snap: emptySnapshot()}
	loader := &fakeLoader{result: &LoadResult{}}
	cursor := &fakeCursor{leaseErr: errors.New("another pipeline run holds the lease")}

	if _, err := testPipeline(extractor, loader, cursor).Run(context.Background()); err == nil {
		t.Fatal("expected error when lease is held")
	}

	if extractor.calls != 0 {
		t.Errorf("extractor called while lease held")
	}
	if len(cursor.runs) != 1 || cursor.runs[0].status != StatusFailed {
		t.Errorf("expected exactly one FAILED audit write, got %+v", cursor.runs)
	}
}
