package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// getMySQLDB connects to a dedicated database next to the one named by
// MYSQL_DSN so wiping tables here cannot disturb other packages' tests.
func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("invalid MYSQL_DSN: %v", err)
	}
	testDB := cfg.DBName + "_storage_test"
	cfg.DBName = ""

	admin, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	defer admin.Close()

	if err := admin.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if _, err := admin.Exec("CREATE DATABASE IF NOT EXISTS `" + testDB + "`"); err != nil {
		t.Fatalf("create test database failed: %v", err)
	}

	cfg.DBName = testDB
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		t.Fatalf("open test database failed: %v", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("migrations failed: %v", err)
	}

	// order_items references both parents, so it goes first
	for _, table := range []string{"order_items", "orders", "products"} {
		if _, err := db.Exec(`DELETE FROM ` + table); err != nil {
			db.Close()
			t.Fatalf("cleanup %s failed: %v", table, err)
		}
	}

	return db
}

func seedProduct(t *testing.T, adapter *MySQLAdapter, name, category, price string, stock int) int64 {
	t.Helper()
	id, err := adapter.CreateProduct(context.Background(), domain.NewProduct{
		Name:     name,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Brand:    "Acme",
	})
	if err != nil {
		t.Fatalf("seed %s failed: %v", name, err)
	}
	return id
}

func TestCreateProduct_DuplicateNameIgnoresCase(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	seedProduct(t, adapter, "mouse", "Peripherals", "10.00", 5)

	_, err := adapter.CreateProduct(context.Background(), domain.NewProduct{
		Name: "Mouse", Category: "Peripherals", Price: decimal.NewFromInt(12), Stock: 1, Brand: "Acme",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 product, got %d", count)
	}
}

func TestCreateProduct_NameUniquenessIsAccentSensitive(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedProduct(t, adapter, "Cafe", "Drinks", "3.00", 5)

	if _, err := adapter.CreateProduct(ctx, domain.NewProduct{
		Name: "Café", Category: "Drinks", Price: decimal.NewFromInt(4), Stock: 1, Brand: "Acme",
	}); err != nil {
		t.Fatalf("expected accented name to register, got %v", err)
	}

	_, err := adapter.CreateProduct(ctx, domain.NewProduct{
		Name: "CAFÉ", Category: "Drinks", Price: decimal.NewFromInt(5), Stock: 1, Brand: "Acme",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for case variant, got %v", err)
	}
}

func TestGetProduct(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	desc := "mechanical"
	id, err := adapter.CreateProduct(ctx, domain.NewProduct{
		Name: "Keyboard", Category: "Peripherals", Price: decimal.RequireFromString("49.90"),
		Stock: 3, Brand: "Acme", Description: &desc,
	})
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	p, err := adapter.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if p == nil {
		t.Fatal("expected product")
	}
	if p.Name != "Keyboard" || p.Stock != 3 || !p.Price.Equal(decimal.RequireFromString("49.90")) {
		t.Errorf("unexpected product: %+v", p)
	}
	if p.Description == nil || *p.Description != desc {
		t.Errorf("expected description %q, got %v", desc, p.Description)
	}
	if p.ImageURL != nil {
		t.Errorf("expected no image url, got %q", *p.ImageURL)
	}

	missing, err := adapter.GetProduct(ctx, id+1000)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing product, got %+v", missing)
	}
}

func TestListProductsAndCategories(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedProduct(t, adapter, "Lamp", "Lighting", "20.00", 1)
	seedProduct(t, adapter, "Desk", "Furniture", "150.00", 2)
	seedProduct(t, adapter, "Chair", "Furniture", "80.00", 4)

	all, err := adapter.ListProducts(ctx, "")
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(all) != 3 || all[0].Name != "Chair" || all[2].Name != "Lamp" {
		t.Errorf("expected products ordered by name, got %+v", all)
	}

	furniture, err := adapter.ListProducts(ctx, "Furniture")
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(furniture) != 2 {
		t.Errorf("expected 2 furniture products, got %d", len(furniture))
	}

	lower, err := adapter.ListProducts(ctx, "furniture")
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(lower) != 0 {
		t.Errorf("category filter should match exactly, got %d", len(lower))
	}

	categories, err := adapter.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if len(categories) != 2 || categories[0] != "Furniture" || categories[1] != "Lighting" {
		t.Errorf("unexpected categories: %v", categories)
	}
}

func commitOrder(ctx context.Context, adapter *MySQLAdapter, productID int64, qty int) (int64, error) {
	var orderID int64
	err := adapter.WithinTx(ctx, func(ctx context.Context, tx port.OrderTx) error {
		products, err := tx.LockProducts(ctx, []int64{productID})
		if err != nil {
			return err
		}
		p, ok := products[productID]
		if !ok {
			return &domain.NotFoundError{Entity: "product", ID: productID}
		}
		item := domain.NewOrderItem(p, qty)
		orderID, err = tx.InsertOrder(ctx, &domain.Order{
			CustomerName:  "Ana",
			CustomerEmail: "ana@example.com",
			Total:         item.Subtotal,
			Status:        domain.OrderStatusPending,
			CreatedAt:     time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		item.OrderID = orderID
		if err := tx.InsertOrderItem(ctx, item); err != nil {
			return err
		}
		return tx.DecrementStock(ctx, productID, qty)
	})
	return orderID, err
}

func TestWithinTx_CommitAndGetOrder(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, adapter, "Keyboard", "Peripherals", "10.00", 5)

	orderID, err := commitOrder(ctx, adapter, productID, 2)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	order, err := adapter.GetOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if order == nil {
		t.Fatal("expected order")
	}
	if domain.FormatMoney(order.Total) != "20.00" {
		t.Errorf("expected total 20.00, got %s", order.Total)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending status, got %s", order.Status)
	}
	if len(order.Items) != 1 || order.Items[0].ProductName != "Keyboard" || order.Items[0].Quantity != 2 {
		t.Errorf("unexpected items: %+v", order.Items)
	}

	p, _ := adapter.GetProduct(ctx, productID)
	if p.Stock != 3 {
		t.Errorf("expected stock 3, got %d", p.Stock)
	}

	orders, err := adapter.ListOrders(ctx, 10)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != orderID {
		t.Errorf("unexpected orders: %+v", orders)
	}
}

func TestWithinTx_LargeOrderTotalFits(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, adapter, "Vault", "Safes", "99999999.99", 1000)

	orderID, err := commitOrder(ctx, adapter, productID, 1000)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	order, err := adapter.GetOrder(ctx, orderID)
	if err != nil || order == nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if domain.FormatMoney(order.Total) != "99999999990.00" {
		t.Errorf("expected total 99999999990.00, got %s", order.Total)
	}
	if domain.FormatMoney(order.Items[0].Subtotal) != "99999999990.00" {
		t.Errorf("expected subtotal 99999999990.00, got %s", order.Items[0].Subtotal)
	}
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	productID := seedProduct(t, adapter, "Keyboard", "Peripherals", "10.00", 5)

	_, err := commitOrder(ctx, adapter, productID, 10)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *InsufficientStockError, got %T", err)
	}
	if stockErr.ProductID != productID || stockErr.Available != 5 || stockErr.Requested != 10 {
		t.Errorf("unexpected stock error: %+v", stockErr)
	}

	var orders int
	db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&orders)
	if orders != 0 {
		t.Errorf("expected order insert to be rolled back, got %d orders", orders)
	}

	p, _ := adapter.GetProduct(ctx, productID)
	if p.Stock != 5 {
		t.Errorf("expected stock 5, got %d", p.Stock)
	}
}

func TestWithinTx_ConcurrentCommitsDoNotOversell(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	initialStock := 10
	productID := seedProduct(t, adapter, "Keyboard", "Peripherals", "10.00", initialStock)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := commitOrder(ctx, adapter, productID, 1)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != initialStock {
		t.Errorf("expected %d successes, got %d", initialStock, successes)
	}

	p, _ := adapter.GetProduct(ctx, productID)
	if p.Stock != 0 {
		t.Errorf("expected stock 0, got %d", p.Stock)
	}
}

func TestLockProducts_MissingIDsAreAbsent(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	id := seedProduct(t, adapter, "Keyboard", "Peripherals", "10.00", 5)

	err := adapter.WithinTx(ctx, func(ctx context.Context, tx port.OrderTx) error {
		products, err := tx.LockProducts(ctx, []int64{id + 99, id, id})
		if err != nil {
			return err
		}
		if len(products) != 1 {
			t.Errorf("expected 1 locked product, got %d", len(products))
		}
		if _, ok := products[id]; !ok {
			t.Errorf("expected product %d to be locked", id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}
}
