package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dsn, err := cfg.MySQL.FormatDSN()
	if err != nil {
		log.Fatalf("invalid mysql config: %v", err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	mysqlAdapter := storage.NewMySQLAdapter(db)
	logger := zap.NewNop()
	cache := service.NewCacheAside(nil, service.CacheConfig{}, logger)
	catalog := service.NewCatalogService(mysqlAdapter, cache, cfg.Order.StoreTimeout, logger)
	orderService := service.NewOrderService(mysqlAdapter, mysqlAdapter, cache, service.OrderConfig{
		StoreTimeout:   cfg.Order.StoreTimeout,
		CommitAttempts: cfg.Order.CommitAttempts,
	}, logger)

	// Two fresh products; every cart takes one of each, in alternating order
	run := uuid.NewString()[:8]
	var productIDs [2]int64
	for i := range productIDs {
		id, err := catalog.RegisterProduct(ctx, domain.NewProduct{
			Name:     fmt.Sprintf("stress-%s-%d", run, i),
			Category: "stress",
			Price:    decimal.RequireFromString("9.99"),
			Stock:    initialStock,
			Brand:    "stress",
		})
		if err != nil {
			log.Fatalf("failed to register product: %v", err)
		}
		productIDs[i] = id
	}

	// Counters
	var successCount, soldOutCount, otherCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			first, second := productIDs[0], productIDs[1]
			if n%2 == 1 {
				first, second = second, first
			}
			_, err := orderService.Commit(ctx, domain.Cart{
				CustomerName:  fmt.Sprintf("customer-%d", n),
				CustomerEmail: uuid.NewString() + "@stress.test",
				Items: []domain.CartItem{
					{ProductID: first, Quantity: 1},
					{ProductID: second, Quantity: 1},
				},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("commit %d failed: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Other failures:   %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && soldOut == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	// Verify final stock in MySQL
	for _, id := range productIDs {
		p, err := catalog.GetProduct(ctx, id)
		if err != nil {
			log.Fatalf("failed to read product %d: %v", id, err)
		}
		if p.Stock == 0 {
			fmt.Printf("PASS: Product %d stock depleted to 0\n", id)
		} else {
			fmt.Printf("FAIL: Product %d expected stock 0, got %d\n", id, p.Stock)
		}
	}
}
