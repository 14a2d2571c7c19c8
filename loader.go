package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/your-org/sales-dw-etl/transformations"
)

// Loader writes star-schema batches into the warehouse (MySQL). Dimensions
// are upserted keyed on their natural identifier; facts are append-only.
// Writes are chunked purely for throughput; chunk size never affects
// correctness.
type Loader struct {
	db        *sql.DB
	chunkSize int
}

// LoadResult summarizes one load: rows written per table plus rows skipped
// by row-level isolation.
type LoadResult struct {
	DimDate     int `json:"dim_date"`
	DimCustomer int `json:"dim_customer"`
	DimProduct  int `json:"dim_product"`
	DimReturn   int `json:"dim_return"`
	FactSales   int `json:"fact_sales"`
	FactReturn  int `json:"fact_return"`
	Skipped     int `json:"skipped"`
}

// RecordsLoaded counts the fact rows written in this run
func (r *LoadResult) RecordsLoaded() int {
	return r.FactSales + r.FactReturn
}

// NewLoader creates a new loader
func NewLoader(db *sql.DB, chunkSize int) *Loader {
	return &Loader{db: db, chunkSize: chunkSize}
}

// Init creates the six warehouse tables if they don't exist
func (l *Loader) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS dim_date (
			date_key INT NOT NULL PRIMARY KEY,
			full_date DATE NOT NULL,
			year SMALLINT NOT NULL,
			month TINYINT NOT NULL,
			day TINYINT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dim_customer (
			customer_key BIGINT NOT NULL PRIMARY KEY,
			customer_id VARCHAR(64) NOT NULL,
			customer_name VARCHAR(255),
			country VARCHAR(128),
			state VARCHAR(128),
			city VARCHAR(128),
			postal_code VARCHAR(32),
			region VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uq_customer_id (customer_id)
		)`,
		`CREATE TABLE IF NOT EXISTS dim_product (
			product_key BIGINT NOT NULL PRIMARY KEY,
			product_id VARCHAR(64) NOT NULL,
			product_name VARCHAR(255),
			category_name VARCHAR(128),
			subcategory_name VARCHAR(128),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uq_product_id (product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS dim_return (
			return_key BIGINT NOT NULL PRIMARY KEY,
			return_id VARCHAR(64) NOT NULL,
			return_status VARCHAR(32),
			return_region VARCHAR(64),
			order_id VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uq_return_id (return_id)
		)`,
		`CREATE TABLE IF NOT EXISTS fact_sales (
			sales_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			customer_key BIGINT NOT NULL,
			product_key BIGINT NOT NULL,
			date_key INT NOT NULL,
			return_key BIGINT NULL,
			sales DOUBLE NOT NULL,
			quantity INT NOT NULL,
			discount DOUBLE NOT NULL,
			profit DOUBLE NOT NULL,
			shipping_cost DOUBLE NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			KEY idx_date_key (date_key),
			KEY idx_customer_key (customer_key)
		)`,
		`CREATE TABLE IF NOT EXISTS fact_return (
			return_fact_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			return_key BIGINT NOT NULL,
			order_key BIGINT NOT NULL,
			customer_key BIGINT NOT NULL,
			date_key INT NOT NULL,
			return_status VARCHAR(32),
			return_region VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			KEY idx_date_key (date_key)
		)`,
	}

	for _, stmt := range ddl {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create warehouse table: %w", err)
		}
	}
	return nil
}

// Load writes one batch. Date dimension loads first because both facts
// reference it; the remaining dimensions load before any fact.
func (l *Loader) Load(ctx context.Context, batch *transformations.StarBatch) (*LoadResult, error) {
	result := &LoadResult{}

	loaded, skipped, err := l.loadRows(ctx, dimDateSpec, dateRows(batch.DimDate))
	if err != nil {
		return nil, err
	}
	result.DimDate = loaded
	result.Skipped += skipped
	log.Printf("  ✅ dim_date: %d rows upserted", loaded)

	loaded, skipped, err = l.loadRows(ctx, dimCustomerSpec, customerRows(batch.DimCustomer))
	if err != nil {
		return nil, err
	}
	result.DimCustomer = loaded
	result.Skipped += skipped
	log.Printf("  ✅ dim_customer: %d rows upserted", loaded)

	loaded, skipped, err = l.loadRows(ctx, dimProductSpec, productRows(batch.DimProduct))
	if err != nil {
		return nil, err
	}
	result.DimProduct = loaded
	result.Skipped += skipped
	log.Printf("  ✅ dim_product: %d rows upserted", loaded)

	loaded, skipped, err = l.loadRows(ctx, dimReturnSpec, returnRows(batch.DimReturn))
	if err != nil {
		return nil, err
	}
	result.DimReturn = loaded
	result.Skipped += skipped
	log.Printf("  ✅ dim_return: %d rows upserted", loaded)

	loaded, skipped, err = l.loadRows(ctx, factSalesSpec, salesFactRows(batch.FactSales))
	if err != nil {
		return nil, err
	}
	result.FactSales = loaded
	result.Skipped += skipped
	log.Printf("  ✅ fact_sales: %d rows appended", loaded)

	loaded, skipped, err = l.loadRows(ctx, factReturnSpec, returnFactRows(batch.FactReturn))
	if err != nil {
		return nil, err
	}
	result.FactReturn = loaded
	result.Skipped += skipped
	log.Printf("  ✅ fact_return: %d rows appended", loaded)

	if result.Skipped > 0 {
		log.Printf("⚠️  %d rows skipped by row-level isolation", result.Skipped)
	}
	return result, nil
}

// tableSpec describes how one warehouse table is written
type tableSpec struct {
	name         string
	insertPrefix string
	placeholders string
	suffix       string
}

var dimDateSpec = tableSpec{
	name:         "dim_date",
	insertPrefix: "INSERT INTO dim_date (date_key, full_date, year, month, day, created_at, updated_at) VALUES ",
	placeholders: "(?, ?, ?, ?, ?, NOW(), NOW())",
	suffix: ` ON DUPLICATE KEY UPDATE
		full_date = VALUES(full_date),
		year = VALUES(year),
		month = VALUES(month),
		day = VALUES(day),
		updated_at = NOW()`,
}

var dimCustomerSpec = tableSpec{
	name:         "dim_customer",
	insertPrefix: "INSERT INTO dim_customer (customer_key, customer_id, customer_name, country, state, city, postal_code, region, created_at, updated_at) VALUES ",
	placeholders: "(?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())",
	suffix: ` ON DUPLICATE KEY UPDATE
		customer_name = VALUES(customer_name),
		country = VALUES(country),
		state = VALUES(state),
		city = VALUES(city),
		postal_code = VALUES(postal_code),
		region = VALUES(region),
		updated_at = NOW()`,
}

var dimProductSpec = tableSpec{
	name:         "dim_product",
	insertPrefix: "INSERT INTO dim_product (product_key, product_id, product_name, category_name, subcategory_name, created_at, updated_at) VALUES ",
	placeholders: "(?, ?, ?, ?, ?, NOW(), NOW())",
	suffix: ` ON DUPLICATE KEY UPDATE
		product_name = VALUES(product_name),
		category_name = VALUES(category_name),
		subcategory_name = VALUES(subcategory_name),
		updated_at = NOW()`,
}

var dimReturnSpec = tableSpec{
	name:         "dim_return",
	insertPrefix: "INSERT INTO dim_return (return_key, return_id, return_status, return_region, order_id, created_at, updated_at) VALUES ",
	placeholders: "(?, ?, ?, ?, ?, NOW(), NOW())",
	suffix: ` ON DUPLICATE KEY UPDATE
		return_status = VALUES(return_status),
		return_region = VALUES(return_region),
		order_id = VALUES(order_id),
		updated_at = NOW()`,
}

var factSalesSpec = tableSpec{
	name:         "fact_sales",
	insertPrefix: "INSERT INTO fact_sales (customer_key, product_key, date_key, return_key, sales, quantity, discount, profit, shipping_cost, created_at, updated_at) VALUES ",
	placeholders: "(?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())",
}

var factReturnSpec = tableSpec{
	name:         "fact_return",
	insertPrefix: "INSERT INTO fact_return (return_key, order_key, customer_key, date_key, return_status, return_region, created_at, updated_at) VALUES ",
	placeholders: "(?, ?, ?, ?, ?, ?, NOW(), NOW())",
}

func dateRows(rows []transformations.DateRow) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{r.DateKey, r.FullDate, r.Year, r.Month, r.Day})
	}
	return out
}

func customerRows(rows []transformations.CustomerRow) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{r.CustomerKey, r.CustomerID, r.CustomerName,
			r.Country, r.State, r.City, r.PostalCode, r.Region})
	}
	return out
}

func productRows(rows []transformations.ProductRow) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{r.ProductKey, r.ProductID, r.ProductName,
			r.CategoryName, r.SubcategoryName})
	}
	return out
}

func returnRows(rows []transformations.ReturnRow) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{r.ReturnKey, r.ReturnID, r.ReturnStatus,
			r.ReturnRegion, r.OrderID})
	}
	return out
}

func salesFactRows(rows []transformations.SalesFact) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		var returnKey any
		if r.ReturnKey != nil {
			returnKey = *r.ReturnKey
		}
		out = append(out, []any{r.CustomerKey, r.ProductKey, r.DateKey, returnKey,
			r.Sales, r.Quantity, r.Discount, r.Profit, r.ShippingCost})
	}
	return out
}

func returnFactRows(rows []transformations.ReturnFact) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{r.ReturnKey, r.OrderKey, r.CustomerKey,
			r.DateKey, r.ReturnStatus, r.ReturnRegion})
	}
	return out
}

// loadRows writes rows in chunks. A failed chunk is retried row by row so
// one malformed record cannot block the rest of the incremental window;
// rows that still fail are logged and counted as skipped.
func (l *Loader) loadRows(ctx context.Context, spec tableSpec, rows [][]any) (loaded, skipped int, err error) {
	for start := 0; start < len(rows); start += l.chunkSize {
		end := start + l.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		if err := l.execChunk(ctx, spec, chunk); err != nil {
			log.Printf("⚠️  %s: chunk of %d rows failed (%v), retrying row by row", spec.name, len(chunk), err)
			ok, bad, rowErr := l.execRowByRow(ctx, spec, chunk)
			if rowErr != nil {
				return loaded, skipped, rowErr
			}
			loaded += ok
			skipped += bad
			continue
		}
		loaded += len(chunk)
	}
	tablesLoadedTotal.WithLabelValues(spec.name).Add(float64(loaded))
	return loaded, skipped, nil
}

func (l *Loader) execChunk(ctx context.Context, spec tableSpec, chunk [][]any) error {
	var sb strings.Builder
	sb.WriteString(spec.insertPrefix)
	args := make([]any, 0, len(chunk)*len(chunk[0]))
	for i, row := range chunk {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(spec.placeholders)
		args = append(args, row...)
	}
	sb.WriteString(spec.suffix)

	_, err := l.db.ExecContext(ctx, sb.String(), args...)
	return err
}

// execRowByRow isolates row-level failures after a chunk failure. Only a
// dead connection or canceled context stops the retry pass.
func (l *Loader) execRowByRow(ctx context.Context, spec tableSpec, chunk [][]any) (loaded, skipped int, err error) {
	query := spec.insertPrefix + spec.placeholders + spec.suffix
	for _, row := range chunk {
		if _, execErr := l.db.ExecContext(ctx, query, row...); execErr != nil {
			if ctx.Err() != nil {
				return loaded, skipped, fmt.Errorf("%s: row retry aborted: %w", spec.name, ctx.Err())
			}
			rowsSkippedTotal.WithLabelValues(spec.name).Inc()
			log.Printf("⚠️  %s: skipping bad row: %v", spec.name, execErr)
			skipped++
			continue
		}
		loaded++
	}
	return loaded, skipped, nil
}
