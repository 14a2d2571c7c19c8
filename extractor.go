package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/your-org/sales-dw-etl/transformations"
)

// Extractor reads the operational store (PostgreSQL). Reference tables are
// pulled in full every run; transactional tables are pulled incrementally
// on the last_changed_at CDC column. All queries are read-only.
type Extractor struct {
	db *sql.DB
}

// NewExtractor creates a new extractor
func NewExtractor(db *sql.DB) *Extractor {
	return &Extractor{db: db}
}

// Extract pulls one CDC window: every reference row plus the transactional
// rows changed after the watermark, ordered by change time so an
// interrupted batch resumes near where it left off.
func (e *Extractor) Extract(ctx context.Context, watermark time.Time) (*transformations.Snapshot, error) {
	snap := &transformations.Snapshot{
		Watermark:   watermark,
		ExtractedAt: time.Now().UTC(),
	}

	var err error
	if snap.Segments, err = e.querySegments(ctx); err != nil {
		return nil, err
	}
	log.Printf("  → segments: %d rows", len(snap.Segments))

	if snap.Categories, err = e.queryCategories(ctx); err != nil {
		return nil, err
	}
	log.Printf("  → categories: %d rows", len(snap.Categories))

	if snap.Subcategories, err = e.querySubcategories(ctx); err != nil {
		return nil, err
	}
	log.Printf("  → subcategories: %d rows", len(snap.Subcategories))

	if snap.Products, err = e.queryProducts(ctx); err != nil {
		return nil, err
	}
	log.Printf("  → products: %d rows", len(snap.Products))

	if snap.Customers, err = e.queryCustomers(ctx); err != nil {
		return nil, err
	}
	log.Printf("  → customers: %d rows", len(snap.Customers))

	if snap.Orders, err = e.queryChangedOrders(ctx, watermark); err != nil {
		return nil, err
	}
	log.Printf("  → orders (changed): %d rows", len(snap.Orders))

	if snap.OrderItems, err = e.queryChangedOrderItems(ctx, watermark); err != nil {
		return nil, err
	}
	log.Printf("  → order_items (changed): %d rows", len(snap.OrderItems))

	if snap.Returns, err = e.queryChangedReturns(ctx, watermark); err != nil {
		return nil, err
	}
	log.Printf("  → returns (changed): %d rows", len(snap.Returns))

	return snap, nil
}

func (e *Extractor) querySegments(ctx context.Context) ([]transformations.Segment, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT segment_id, segment_name
		FROM segments
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	out := []transformations.Segment{}
	for rows.Next() {
		var s transformations.Segment
		if err := rows.Scan(&s.SegmentID, &s.SegmentName); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (e *Extractor) queryCategories(ctx context.Context) ([]transformations.Category, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT category_id, category_name
		FROM categories
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	out := []transformations.Category{}
	for rows.Next() {
		var c transformations.Category
		if err := rows.Scan(&c.CategoryID, &c.CategoryName); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (e *Extractor) querySubcategories(ctx context.Context) ([]transformations.Subcategory, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT subcategory_id, subcategory_name, category_id
		FROM subcategories
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subcategories: %w", err)
	}
	defer rows.Close()

	out := []transformations.Subcategory{}
	for rows.Next() {
		var s transformations.Subcategory
		if err := rows.Scan(&s.SubcategoryID, &s.SubcategoryName, &s.CategoryID); err != nil {
			return nil, fmt.Errorf("failed to scan subcategory: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (e *Extractor) queryProducts(ctx context.Context) ([]transformations.Product, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT product_id, product_name, subcategory_id
		FROM products
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	out := []transformations.Product{}
	for rows.Next() {
		var p transformations.Product
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.SubcategoryID); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (e *Extractor) queryCustomers(ctx context.Context) ([]transformations.Customer, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT customer_id, customer_name, country, state, city, postal_code, region, segment_id
		FROM customers
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	out := []transformations.Customer{}
	for rows.Next() {
		var c transformations.Customer
		if err := rows.Scan(&c.CustomerID, &c.CustomerName, &c.Country, &c.State,
			&c.City, &c.PostalCode, &c.Region, &c.SegmentID); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (e *Extractor) queryChangedOrders(ctx context.Context, watermark time.Time) ([]transformations.Order, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT order_id, customer_id, order_date, last_changed_at
		FROM orders
		WHERE last_changed_at > $1
		ORDER BY last_changed_at ASC
	`, watermark)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed orders: %w", err)
	}
	defer rows.Close()

	out := []transformations.Order{}
	for rows.Next() {
		var o transformations.Order
		if err := rows.Scan(&o.OrderID, &o.CustomerID, &o.OrderDate, &o.LastChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (e *Extractor) queryChangedOrderItems(ctx context.Context, watermark time.Time) ([]transformations.OrderItem, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT order_id, product_id, ship_date, sales, quantity, discount, shipping_cost, profit, last_changed_at
		FROM order_items
		WHERE last_changed_at > $1
		ORDER BY last_changed_at ASC
	`, watermark)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed order items: %w", err)
	}
	defer rows.Close()

	out := []transformations.OrderItem{}
	for rows.Next() {
		var item transformations.OrderItem
		var profit sql.NullFloat64
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.ShipDate, &item.Sales,
			&item.Quantity, &item.Discount, &item.ShippingCost, &profit, &item.LastChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		if profit.Valid {
			p := profit.Float64
			item.Profit = &p
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (e *Extractor) queryChangedReturns(ctx context.Context, watermark time.Time) ([]transformations.Return, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT return_id, order_id, return_status, return_region, last_changed_at
		FROM returns
		WHERE last_changed_at > $1
		ORDER BY last_changed_at ASC
	`, watermark)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed returns: %w", err)
	}
	defer rows.Close()

	out := []transformations.Return{}
	for rows.Next() {
		var r transformations.Return
		if err := rows.Scan(&r.ReturnID, &r.OrderID, &r.ReturnStatus, &r.ReturnRegion, &r.LastChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
