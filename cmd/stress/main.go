package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/mfalan/stock-ledger/internal/adapter/storage"
	"github.com/mfalan/stock-ledger/internal/core/service"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/stockledger?parseTime=true"
	initialStock  = 20
	totalRequests = 50
)

// Hammers a single item with concurrent stock-outs and checks that exactly
// initialStock of them succeed and the ledger stayed consistent.
func main() {
	ctx := context.Background()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	store := storage.NewMySQLAdapter(db)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	movements := service.NewMovementService(store, nil, nil)
	catalog := service.NewCatalogService(store, store)

	item, err := catalog.CreateItem(ctx, service.CreateItemRequest{
		Code: fmt.Sprintf("STRESS-%d", time.Now().UnixNano()),
		Name: "stress test item",
	})
	if err != nil {
		log.Fatalf("failed to create item: %v", err)
	}
	if _, err := movements.StockIn(ctx, item.ID, initialStock, service.MovementOptions{Reason: "stress seed"}); err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := movements.StockOut(ctx, item.ID, 1, service.MovementOptions{Reason: "stress"})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("====================================")

	// requests that burn through their retry budget fail without consuming
	// stock, so the hard invariant is no overselling, not an exact count
	if success > int32(initialStock) {
		fmt.Printf("FAIL: oversold, %d stock-outs from %d stock\n", success, initialStock)
	} else {
		fmt.Printf("PASS: %d stock-outs from %d stock, never oversold\n", success, initialStock)
	}

	final, err := store.GetItem(ctx, item.ID)
	if err != nil || final == nil {
		log.Fatalf("failed to reload item: %v", err)
	}
	fmt.Printf("Final Quantity: %d\n", final.Quantity)

	latest, err := store.LatestMovement(ctx, item.ID)
	if err != nil || latest == nil {
		log.Fatalf("failed to read ledger: %v", err)
	}
	if final.Quantity == initialStock-int(success) && latest.AfterQuantity == final.Quantity {
		fmt.Println("PASS: quantity and ledger agree")
	} else {
		fmt.Printf("FAIL: quantity %d, ledger says %d, successes %d\n", final.Quantity, latest.AfterQuantity, success)
	}
}
