package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Stress driver: fires concurrent purchase requests at a running server and
// reports outcome counts. One customer per request, so quota never rejects
// and the stock counter is the contended resource.
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	saleID := flag.String("sale", "stress-sale", "sale to purchase from")
	requests := flag.Int("n", 200, "total concurrent requests")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	var committed, rejected, retriable, failed atomic.Int32
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			body, _ := json.Marshal(map[string]interface{}{
				"customer_id": fmt.Sprintf("stress-customer-%d", id),
				"quantity":    1,
			})

			resp, err := client.Post(
				fmt.Sprintf("%s/sales/%s/purchase", *baseURL, *saleID),
				"application/json", bytes.NewReader(body),
			)
			if err != nil {
				failed.Add(1)
				return
			}
			resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusOK:
				committed.Add(1)
			case http.StatusBadRequest:
				rejected.Add(1)
			case http.StatusServiceUnavailable:
				retriable.Add(1)
			default:
				failed.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("requests:  %d in %s\n", *requests, elapsed)
	fmt.Printf("committed: %d\n", committed.Load())
	fmt.Printf("rejected:  %d\n", rejected.Load())
	fmt.Printf("retriable: %d\n", retriable.Load())
	fmt.Printf("failed:    %d\n", failed.Load())
}
