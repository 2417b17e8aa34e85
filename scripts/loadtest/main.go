// Loadtest submits random payments to the router, waits for the queue to
// settle and then checks the router's summary against what each processor
// reports.
//
// Usage:
//
//	go run ./scripts/loadtest -router http://localhost:8080 -requests 5000 -concurrency 50
//	go run ./scripts/loadtest -primary http://localhost:8001 -secondary http://localhost:8002
//
// Exit codes:
//
//	0 - all accepted payments accounted for
//	2 - submissions failed or summaries disagree
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type processorSummary struct {
	TotalRequests int64           `json:"totalRequests"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

type routerSummary struct {
	Default  processorSummary `json:"default"`
	Fallback processorSummary `json:"fallback"`
}

func main() {
	var (
		routerURL    = flag.String("router", "http://localhost:8080", "Router base URL")
		primaryURL   = flag.String("primary", "", "Primary processor base URL (optional)")
		secondaryURL = flag.String("secondary", "", "Secondary processor base URL (optional)")
		concurrency  = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests     = flag.Int("requests", 100, "Total number of payments to submit")
		settle       = flag.Duration("settle", 5*time.Second, "Time to wait for the queue to drain")
		timeout      = flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	)
	flag.Parse()

	decimal.MarshalJSONWithoutQuotes = true
	client := &http.Client{Timeout: *timeout}

	jobs := make(chan int)
	var wg sync.WaitGroup

	var accepted, rejected, failed int32
	var acceptedMu sync.Mutex
	acceptedAmount := decimal.Zero

	var latMu sync.Mutex
	var latencies []time.Duration

	testStart := time.Now()
	from := testStart.UTC()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				amount := decimal.New(rand.Int64N(100000)+1, -2)
				body, _ := json.Marshal(map[string]any{
					"correlationId": uuid.NewString(),
					"amount":        amount,
				})

				start := time.Now()
				resp, err := client.Post(*routerURL+"/payments", "application/json", bytes.NewReader(body))
				dur := time.Since(start)

				latMu.Lock()
				latencies = append(latencies, dur)
				latMu.Unlock()

				if err != nil {
					atomic.AddInt32(&failed, 1)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				switch {
				case resp.StatusCode == http.StatusAccepted:
					atomic.AddInt32(&accepted, 1)
					acceptedMu.Lock()
					acceptedAmount = acceptedAmount.Add(amount)
					acceptedMu.Unlock()
				case resp.StatusCode == http.StatusServiceUnavailable:
					atomic.AddInt32(&rejected, 1)
				default:
					atomic.AddInt32(&failed, 1)
				}
			}
		}()
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", *routerURL)
	fmt.Printf("Requests: %d  Concurrency: %d\n", *requests, *concurrency)
	fmt.Printf("Accepted: %d  Rejected: %d  Failed: %d\n", accepted, rejected, failed)
	fmt.Printf("Accepted amount: %s\n", acceptedAmount.StringFixed(2))
	fmt.Printf("Duration: %v  Throughput: %.2f req/s\n", totalDuration, float64(*requests)/totalDuration.Seconds())

	if len(latencies) > 0 {
		slices.Sort(latencies)
		pick := func(p float64) time.Duration { return latencies[int(float64(len(latencies)-1)*p)] }
		fmt.Printf("Latencies: min=%v p50=%v p95=%v p99=%v max=%v\n",
			latencies[0], pick(0.50), pick(0.95), pick(0.99), latencies[len(latencies)-1])
	}

	fmt.Printf("\nWaiting %v for the queue to drain...\n", *settle)
	time.Sleep(*settle)

	var got routerSummary
	if err := getJSON(client, fmt.Sprintf("%s/payments-summary?from=%s", *routerURL, from.Format(time.RFC3339Nano)), &got); err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch router summary: %v\n", err)
		os.Exit(2)
	}

	fmt.Println("\nRouter summary:")
	fmt.Printf("  default  -> requests=%d amount=%s\n", got.Default.TotalRequests, got.Default.TotalAmount.StringFixed(2))
	fmt.Printf("  fallback -> requests=%d amount=%s\n", got.Fallback.TotalRequests, got.Fallback.TotalAmount.StringFixed(2))

	ok := failed == 0
	routed := got.Default.TotalRequests + got.Fallback.TotalRequests
	if routed != int64(accepted) {
		fmt.Printf("MISMATCH: %d accepted, %d recorded (dropped or still queued)\n", accepted, routed)
		ok = false
	}

	ok = compare(client, "default", *primaryURL, got.Default) && ok
	ok = compare(client, "fallback", *secondaryURL, got.Fallback) && ok

	if !ok {
		os.Exit(2)
	}
	fmt.Println("\nAll recorded payments match the processors")
}

// compare checks the router's view of one processor against the processor's
// own summary. The processor summary covers its whole lifetime, so run the
// check against freshly started processors.
func compare(client *http.Client, name, baseURL string, want processorSummary) bool {
	if baseURL == "" {
		return true
	}

	var got processorSummary
	if err := getJSON(client, baseURL+"/payments-summary", &got); err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch %s summary: %v\n", name, err)
		return false
	}

	if got.TotalRequests != want.TotalRequests || !got.TotalAmount.Equal(want.TotalAmount) {
		fmt.Printf("MISMATCH %s: router=%d/%s processor=%d/%s\n", name,
			want.TotalRequests, want.TotalAmount.StringFixed(2),
			got.TotalRequests, got.TotalAmount.StringFixed(2))
		return false
	}
	return true
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
