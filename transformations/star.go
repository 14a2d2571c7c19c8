package transformations

import (
	"fmt"
	"log"
	"time"
)

// Transform reshapes one extraction window into the six star-schema tables.
// It is a pure function of the snapshot: no database access, no clock reads
// beyond the snapshot's own timestamps. An empty window produces a
// well-formed empty batch, never an error.
func Transform(snap *Snapshot) (*StarBatch, error) {
	batch := &StarBatch{
		DimDate:     []DateRow{},
		DimCustomer: []CustomerRow{},
		DimProduct:  []ProductRow{},
		DimReturn:   []ReturnRow{},
		FactSales:   []SalesFact{},
		FactReturn:  []ReturnFact{},
	}

	batch.DimDate = buildDateDimension(snap)
	log.Printf("  → dim_date: %d rows", len(batch.DimDate))

	batch.DimCustomer = buildCustomerDimension(snap.Customers)
	log.Printf("  → dim_customer: %d rows", len(batch.DimCustomer))

	batch.DimProduct = buildProductDimension(snap.Products, snap.Subcategories, snap.Categories)
	log.Printf("  → dim_product: %d rows", len(batch.DimProduct))

	batch.DimReturn = buildReturnDimension(snap.Returns)
	log.Printf("  → dim_return: %d rows", len(batch.DimReturn))

	facts, err := buildSalesFacts(snap)
	if err != nil {
		return nil, fmt.Errorf("fact_sales: %w", err)
	}
	batch.FactSales = facts
	log.Printf("  → fact_sales: %d rows", len(batch.FactSales))

	returnFacts, err := buildReturnFacts(snap)
	if err != nil {
		return nil, fmt.Errorf("fact_return: %w", err)
	}
	batch.FactReturn = returnFacts
	log.Printf("  → fact_return: %d rows", len(batch.FactReturn))

	return batch, nil
}

// buildDateDimension collects every order date and ship date in the window
// and spans them with a dense calendar.
func buildDateDimension(snap *Snapshot) []DateRow {
	dates := []time.Time{}
	for _, o := range snap.Orders {
		if !o.OrderDate.IsZero() {
			dates = append(dates, o.OrderDate)
		}
	}
	for _, item := range snap.OrderItems {
		if !item.ShipDate.IsZero() {
			dates = append(dates, item.ShipDate)
		}
	}
	return calendarRange(dates)
}

func buildCustomerDimension(customers []Customer) []CustomerRow {
	rows := make([]CustomerRow, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, CustomerRow{
			CustomerKey:  SurrogateKey(c.CustomerID),
			CustomerID:   c.CustomerID,
			CustomerName: c.CustomerName,
			Country:      c.Country,
			State:        c.State,
			City:         c.City,
			PostalCode:   c.PostalCode,
			Region:       c.Region,
		})
	}
	return rows
}

// buildProductDimension copies product rows and resolves the parent
// hierarchy names. Missing parents leave the name empty (left-join
// semantics), they do not fail the batch.
func buildProductDimension(products []Product, subcategories []Subcategory, categories []Category) []ProductRow {
	categoryNames := make(map[int64]string, len(categories))
	for _, c := range categories {
		categoryNames[c.CategoryID] = c.CategoryName
	}
	subcatByID := make(map[int64]Subcategory, len(subcategories))
	for _, s := range subcategories {
		subcatByID[s.SubcategoryID] = s
	}

	rows := make([]ProductRow, 0, len(products))
	for _, p := range products {
		row := ProductRow{
			ProductKey:  SurrogateKey(p.ProductID),
			ProductID:   p.ProductID,
			ProductName: p.ProductName,
		}
		if sub, ok := subcatByID[p.SubcategoryID]; ok {
			row.SubcategoryName = sub.SubcategoryName
			row.CategoryName = categoryNames[sub.CategoryID]
		}
		rows = append(rows, row)
	}
	return rows
}

func buildReturnDimension(returns []Return) []ReturnRow {
	rows := make([]ReturnRow, 0, len(returns))
	for _, r := range returns {
		rows = append(rows, ReturnRow{
			ReturnKey:    SurrogateKey(r.ReturnID),
			ReturnID:     r.ReturnID,
			ReturnStatus: r.ReturnStatus,
			ReturnRegion: r.ReturnRegion,
			OrderID:      r.OrderID,
		})
	}
	return rows
}

// buildSalesFacts joins line items to their parent orders and resolves the
// customer, product, date and return keys. A line item whose parent order,
// customer or product cannot be resolved is a fatal transformation error:
// the fact would otherwise silently lose its linkage.
func buildSalesFacts(snap *Snapshot) ([]SalesFact, error) {
	ordersByID := make(map[string]Order, len(snap.Orders))
	for _, o := range snap.Orders {
		ordersByID[o.OrderID] = o
	}
	customerExists := make(map[string]bool, len(snap.Customers))
	for _, c := range snap.Customers {
		customerExists[c.CustomerID] = true
	}
	productExists := make(map[string]bool, len(snap.Products))
	for _, p := range snap.Products {
		productExists[p.ProductID] = true
	}
	// Return linkage is scoped to the current window: a return extracted in
	// a later run is never backfilled onto this run's sales facts.
	returnKeyByOrder := make(map[string]int64, len(snap.Returns))
	for _, r := range snap.Returns {
		returnKeyByOrder[r.OrderID] = SurrogateKey(r.ReturnID)
	}

	facts := make([]SalesFact, 0, len(snap.OrderItems))
	for _, item := range snap.OrderItems {
		order, ok := ordersByID[item.OrderID]
		if !ok {
			return nil, fmt.Errorf("line item references order %q not present in batch", item.OrderID)
		}
		if !customerExists[order.CustomerID] {
			return nil, fmt.Errorf("order %q references unknown customer %q", order.OrderID, order.CustomerID)
		}
		if !productExists[item.ProductID] {
			return nil, fmt.Errorf("line item in order %q references unknown product %q", item.OrderID, item.ProductID)
		}
		if item.ShipDate.IsZero() {
			return nil, fmt.Errorf("line item in order %q has no ship date", item.OrderID)
		}

		profit := item.Sales - item.Discount*item.Sales
		if item.Profit != nil {
			profit = *item.Profit
		}

		fact := SalesFact{
			CustomerKey:  SurrogateKey(order.CustomerID),
			ProductKey:   SurrogateKey(item.ProductID),
			DateKey:      DateKey(item.ShipDate),
			Sales:        item.Sales,
			Quantity:     item.Quantity,
			Discount:     item.Discount,
			Profit:       profit,
			ShippingCost: item.ShippingCost,
		}
		if key, ok := returnKeyByOrder[item.OrderID]; ok {
			k := key
			fact.ReturnKey = &k
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

// buildReturnFacts mirrors the sales fact linkage for return events, dated
// by the parent order's order date. A return whose order fell outside the
// window keeps zero order, customer and date keys rather than failing the
// batch.
func buildReturnFacts(snap *Snapshot) ([]ReturnFact, error) {
	ordersByID := make(map[string]Order, len(snap.Orders))
	for _, o := range snap.Orders {
		ordersByID[o.OrderID] = o
	}
	customerExists := make(map[string]bool, len(snap.Customers))
	for _, c := range snap.Customers {
		customerExists[c.CustomerID] = true
	}

	facts := make([]ReturnFact, 0, len(snap.Returns))
	for _, r := range snap.Returns {
		fact := ReturnFact{
			ReturnKey:    SurrogateKey(r.ReturnID),
			ReturnStatus: r.ReturnStatus,
			ReturnRegion: r.ReturnRegion,
		}
		if order, ok := ordersByID[r.OrderID]; ok {
			if !customerExists[order.CustomerID] {
				return nil, fmt.Errorf("return %q order %q references unknown customer %q", r.ReturnID, order.OrderID, order.CustomerID)
			}
			fact.OrderKey = SurrogateKey(order.OrderID)
			fact.CustomerKey = SurrogateKey(order.CustomerID)
			if !order.OrderDate.IsZero() {
				fact.DateKey = DateKey(order.OrderDate)
			}
		}
		facts = append(facts, fact)
	}
	return facts, nil
}
