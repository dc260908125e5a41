package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

type cartLine struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type cartView struct {
	Items []cartLine `json:"items"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "storefront base URL")
	itemID := flag.String("item", "", "product id to add, defaults to the first in-stock product")
	totalRequests := flag.Int("requests", 50, "number of concurrent add requests")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	client := &http.Client{Timeout: 30 * time.Second}

	target, err := pickProduct(client, *baseURL, *itemID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to pick product")
	}

	// A fresh user keeps runs independent of each other.
	userID := "stress-" + uuid.NewString()

	var successCount, conflictCount, failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status, err := addItem(client, *baseURL, userID, target.ID)
			switch {
			case err != nil:
				log.Debug().Err(err).Msg("request failed")
				failCount.Add(1)
			case status == http.StatusOK:
				successCount.Add(1)
			case status == http.StatusConflict:
				conflictCount.Add(1)
			default:
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, err := cartQuantity(client, *baseURL, userID, target.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read cart")
	}

	success := int(successCount.Load())

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Product:          %s (%s)\n", target.Name, target.ID)
	fmt.Printf("Stock:            %d\n", target.Stock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Out of stock:     %d\n", conflictCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Final Quantity:   %d\n", final)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	if final > target.Stock {
		fmt.Printf("FAIL: cart holds %d, more than the %d in stock\n", final, target.Stock)
		ok = false
	}
	if final != success {
		fmt.Printf("FAIL: %d adds succeeded but cart holds %d (lost update)\n", success, final)
		ok = false
	}
	if ok {
		fmt.Println("PASS: no lost updates and stock never exceeded")
		return
	}
	os.Exit(1)
}

func pickProduct(client *http.Client, baseURL, itemID string) (product, error) {
	resp, err := client.Get(baseURL + "/items")
	if err != nil {
		return product{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return product{}, fmt.Errorf("list items: status %d", resp.StatusCode)
	}

	var products []product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return product{}, fmt.Errorf("decode items: %w", err)
	}
	for _, p := range products {
		if (itemID == "" && p.Stock > 0) || p.ID == itemID {
			return p, nil
		}
	}
	return product{}, fmt.Errorf("no matching product in stock")
}

func addItem(client *http.Client, baseURL, userID, itemID string) (int, error) {
	body, _ := json.Marshal(map[string]any{"itemId": itemID, "quantity": 1})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/cart", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func cartQuantity(client *http.Client, baseURL, userID, itemID string) (int, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/cart", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-User-ID", userID)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var view cartView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return 0, fmt.Errorf("decode cart: %w", err)
	}
	for _, line := range view.Items {
		if line.ID == itemID {
			return line.Quantity, nil
		}
	}
	return 0, nil
}
