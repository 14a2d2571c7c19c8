package transformations

import "time"

// Operational rows, as extracted from the OLTP store. Transactional rows
// carry the last_changed_at timestamp the store maintains on insert/update.

// Segment is a customer market segment reference row
type Segment struct {
	SegmentID   int64  `json:"segment_id"`
	SegmentName string `json:"segment_name"`
}

// Category is a product category reference row
type Category struct {
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
}

// Subcategory is a product subcategory reference row
type Subcategory struct {
	SubcategoryID   int64  `json:"subcategory_id"`
	SubcategoryName string `json:"subcategory_name"`
	CategoryID      int64  `json:"category_id"`
}

// Product is a product reference row
type Product struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	SubcategoryID int64  `json:"subcategory_id"`
}

// Customer is a customer reference row
type Customer struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Country      string `json:"country"`
	State        string `json:"state"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
	Region       string `json:"region"`
	SegmentID    int64  `json:"segment_id"`
}

// Order is an order header row
type Order struct {
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	OrderDate     time.Time `json:"order_date"`
	LastChangedAt time.Time `json:"last_changed_at"`
}

// OrderItem is an order line item row
type OrderItem struct {
	OrderID       string    `json:"order_id"`
	ProductID     string    `json:"product_id"`
	ShipDate      time.Time `json:"ship_date"`
	Sales         float64   `json:"sales"`
	Quantity      int       `json:"quantity"`
	Discount      float64   `json:"discount"`
	ShippingCost  float64   `json:"shipping_cost"`
	Profit        *float64  `json:"profit,omitempty"`
	LastChangedAt time.Time `json:"last_changed_at"`
}

// Return is a return event row
type Return struct {
	ReturnID      string    `json:"return_id"`
	OrderID       string    `json:"order_id"`
	ReturnStatus  string    `json:"return_status"`
	ReturnRegion  string    `json:"return_region"`
	LastChangedAt time.Time `json:"last_changed_at"`
}

// Snapshot is one extraction window: full reference tables plus the
// transactional rows that changed after the watermark.
type Snapshot struct {
	Watermark   time.Time `json:"watermark"`
	ExtractedAt time.Time `json:"extracted_at"`

	Segments      []Segment     `json:"segments"`
	Categories    []Category    `json:"categories"`
	Subcategories []Subcategory `json:"subcategories"`
	Products      []Product     `json:"products"`
	Customers     []Customer    `json:"customers"`

	Orders     []Order     `json:"orders"`
	OrderItems []OrderItem `json:"order_items"`
	Returns    []Return    `json:"returns"`
}

// ChangedRecords counts the transactional rows in the window
func (s *Snapshot) ChangedRecords() int {
	return len(s.Orders) + len(s.OrderItems) + len(s.Returns)
}

// Star-schema rows, as loaded into the warehouse.

// DateRow is one calendar day in the date dimension
type DateRow struct {
	DateKey  int       `json:"date_key"`
	FullDate time.Time `json:"full_date"`
	Year     int       `json:"year"`
	Month    int       `json:"month"`
	Day      int       `json:"day"`
}

// CustomerRow is one customer dimension row
type CustomerRow struct {
	CustomerKey  int64  `json:"customer_key"`
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Country      string `json:"country"`
	State        string `json:"state"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
	Region       string `json:"region"`
}

// ProductRow is one product dimension row with resolved hierarchy names
type ProductRow struct {
	ProductKey      int64  `json:"product_key"`
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	CategoryName    string `json:"category_name"`
	SubcategoryName string `json:"subcategory_name"`
}

// ReturnRow is one return dimension row
type ReturnRow struct {
	ReturnKey    int64  `json:"return_key"`
	ReturnID     string `json:"return_id"`
	ReturnStatus string `json:"return_status"`
	ReturnRegion string `json:"return_region"`
	OrderID      string `json:"order_id"`
}

// SalesFact is one sales fact row (one order line item)
type SalesFact struct {
	CustomerKey  int64   `json:"customer_key"`
	ProductKey   int64   `json:"product_key"`
	DateKey      int     `json:"date_key"`
	ReturnKey    *int64  `json:"return_key,omitempty"`
	Sales        float64 `json:"sales"`
	Quantity     int     `json:"quantity"`
	Discount     float64 `json:"discount"`
	Profit       float64 `json:"profit"`
	ShippingCost float64 `json:"shipping_cost"`
}

// ReturnFact is one return fact row
type ReturnFact struct {
	ReturnKey    int64  `json:"return_key"`
	OrderKey     int64  `json:"order_key"`
	CustomerKey  int64  `json:"customer_key"`
	DateKey      int    `json:"date_key"`
	ReturnStatus string `json:"return_status"`
	ReturnRegion string `json:"return_region"`
}

// StarBatch is the transformed output of one extraction window. Slices are
// always non-nil so an empty window still serializes with every table
// present.
type StarBatch struct {
	DimDate     []DateRow     `json:"dim_date"`
	DimCustomer []CustomerRow `json:"dim_customer"`
	DimProduct  []ProductRow  `json:"dim_product"`
	DimReturn   []ReturnRow   `json:"dim_return"`
	FactSales   []SalesFact   `json:"fact_sales"`
	FactReturn  []ReturnFact  `json:"fact_return"`
}
