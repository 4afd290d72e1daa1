// Command loadtest hammers a running server with concurrent order
// placements for one menu item and checks that stock is conserved:
// with more requests than stock, exactly stock placements succeed.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

func main() {
	var (
		baseURL       = flag.String("url", "http://localhost:8080", "server base URL")
		initialStock  = flag.Int("stock", 20, "stock to seed the test item with")
		totalRequests = flag.Int("requests", 50, "concurrent placement attempts")
	)
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	itemID, err := createItem(client, *baseURL, *initialStock)
	if err != nil {
		log.Fatalf("failed to create test item: %v", err)
	}
	log.Printf("created test item %s with stock %d", itemID, *initialStock)

	var successCount atomic.Int32
	var stockFailCount atomic.Int32
	var otherFailCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status, err := placeOrder(client, *baseURL, itemID)
			switch {
			case err == nil && status == http.StatusCreated:
				successCount.Add(1)
			case status == http.StatusBadRequest:
				stockFailCount.Add(1)
			default:
				otherFailCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := stockFailCount.Load()
	other := otherFailCount.Load()

	fmt.Println("========== LOAD TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Placed:           %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Other Failures:   %d\n", other)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=======================================")

	want := int32(*initialStock)
	if int32(*totalRequests) < want {
		want = int32(*totalRequests)
	}
	if success == want {
		fmt.Printf("PASS: exactly %d placements succeeded\n", want)
	} else {
		fmt.Printf("FAIL: expected %d successful placements, got %d\n", want, success)
	}

	finalStock, err := fetchStock(client, *baseURL, itemID)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", finalStock)

	if int32(*initialStock)-success == int32(finalStock) {
		fmt.Println("PASS: stock conserved")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", int32(*initialStock)-success, finalStock)
	}
}

func createItem(client *http.Client, baseURL string, stock int) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"name":     "loadtest-item-" + uuid.New().String()[:8],
		"category": "LoadTest",
		"price":    4.50,
		"stock":    stock,
	})

	resp, err := client.Post(baseURL+"/api/menu", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var item struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return "", err
	}
	return item.ID, nil
}

func placeOrder(client *http.Client, baseURL, itemID string) (int, error) {
	body, _ := json.Marshal(map[string]any{
		"user_id": "loadtest-" + uuid.New().String(),
		"items": []map[string]any{
			{"item_id": itemID, "quantity": 1},
		},
	})

	resp, err := client.Post(baseURL+"/api/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func fetchStock(client *http.Client, baseURL, itemID string) (int, error) {
	resp, err := client.Get(baseURL + "/api/menu/" + itemID)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var item struct {
		Stock int `json:"stock"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return 0, err
	}
	return item.Stock, nil
}
