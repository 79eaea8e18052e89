package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

const (
	baseURL      = "http://127.0.0.1:8090"
	numWorkers   = 50
	testDuration = 10 * time.Second
	numUsers     = 200
)

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	latencies []time.Duration
}

// userID builds a 28 character uid from an index.
func userID(i int) string {
	s := fmt.Sprintf("load%d", i)
	return s + strings.Repeat("x", 28-len(s))
}

func main() {
	fmt.Println("=== HOYN Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s | Users: %d\n\n", numWorkers, testDuration, numUsers)

	fmt.Print("Waiting for server... ")
	for i := 0; i < 30; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			break
		}
		if i == 29 {
			fmt.Println("FAILED: server not responding")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("OK")

	fmt.Println("\n--- Phase 1: Seeding profiles (POST /profiles) ---")
	for i := 0; i < numUsers; i++ {
		r := doUpsertProfile(i)
		if r.err {
			fmt.Printf("seed %d failed with status %d\n", i, r.status)
			return
		}
	}
	fmt.Printf("  %d profiles\n", numUsers)

	fmt.Println("\n--- Phase 2: Scan load (POST /scan-qr) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		return doScan(rng)
	})

	fmt.Println("\n--- Phase 3: Mixed messaging load (40% send, 60% read) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.40:
			return doSend(rng)
		case r < 0.75:
			return doListConversations(rng)
		default:
			return doGetStats(rng)
		}
	})
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	var totalOps atomic.Int64
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					r := workFn(rng)
					totalOps.Add(1)
					results <- r
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{}
				allResults[r.endpoint] = s
			}
			s.count++
			if r.err {
				s.errors++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-22s %8s %6s %10s %10s %10s %10s\n",
		"Endpoint", "Reqs", "Errs", "Avg", "P50", "P95", "P99")
	fmt.Println("  " + strings.Repeat("-", 88))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		avg := avgDuration(s.latencies)
		p50 := percentile(s.latencies, 0.50)
		p95 := percentile(s.latencies, 0.95)
		p99 := percentile(s.latencies, 0.99)

		fmt.Printf("  %-22s %8d %6d %10s %10s %10s %10s\n",
			ep, s.count, s.errors, fmtDur(avg), fmtDur(p50), fmtDur(p95), fmtDur(p99))
	}

	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + strings.Repeat("-", 88))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

func post(endpoint, path string, body any, ok func(int) bool) result {
	data, _ := json.Marshal(body)
	start := time.Now()
	resp, err := httpClient.Post(baseURL+path, "application/json", bytes.NewReader(data))
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, resp.StatusCode, lat, !ok(resp.StatusCode)}
}

func get(endpoint, url string, ok func(int) bool) result {
	start := time.Now()
	resp, err := httpClient.Get(url)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, resp.StatusCode, lat, !ok(resp.StatusCode)}
}

func statusIn(codes ...int) func(int) bool {
	return func(status int) bool {
		for _, c := range codes {
			if c == status {
				return true
			}
		}
		return false
	}
}

func doUpsertProfile(i int) result {
	body := map[string]any{
		"id":       fmt.Sprintf("p%d", i),
		"ownerUid": userID(i),
		"username": fmt.Sprintf("user%d", i),
		"slug":     fmt.Sprintf("user-%d", i),
		"settings": map[string]bool{"canReceiveMessages": true, "canReceiveAnonymous": i%2 == 0},
	}
	return post("POST /profiles", "/profiles", body, statusIn(http.StatusOK))
}

func doScan(rng *rand.Rand) result {
	raw := fmt.Sprintf("https://hoyn.app/u/p%d", rng.Intn(numUsers*2))
	// throttled scans are expected under load
	return post("POST /scan-qr", "/scan-qr", map[string]string{"rawData": raw},
		statusIn(http.StatusOK, http.StatusNotFound, http.StatusTooManyRequests))
}

func doSend(rng *rand.Rand) result {
	from := rng.Intn(numUsers)
	to := (from + 1 + rng.Intn(numUsers-1)) % numUsers
	body := map[string]any{
		"senderId":    userID(from),
		"recipientId": userID(to),
		"text":        fmt.Sprintf("load message %d", rng.Int()),
		"isAnonymous": false,
	}
	// 429 is expected once a sender exhausts its window
	return post("POST /messages/send", "/messages/send", body, statusIn(http.StatusOK, http.StatusTooManyRequests))
}

func doListConversations(rng *rand.Rand) result {
	url := fmt.Sprintf("%s/conversations?userId=%s", baseURL, userID(rng.Intn(numUsers)))
	return get("GET /conversations", url, statusIn(http.StatusOK))
}

func doGetStats(rng *rand.Rand) result {
	url := fmt.Sprintf("%s/stats/scans?profileId=p%d", baseURL, rng.Intn(numUsers))
	return get("GET /stats/scans", url, statusIn(http.StatusOK, http.StatusNotFound))
}

func avgDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}
