package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ErDmKo/asyncmc"
)

type OperationType string

const (
	CacheHit     OperationType = "cache-hit"
	DynamicValue OperationType = "dynamic-value"
	CacheMiss    OperationType = "cache-miss"
	MultiGet     OperationType = "multi-get"
	Append       OperationType = "append"
	Delete       OperationType = "delete"
	All          OperationType = "all"
)

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

// operation runs one iteration for a worker. A non-nil error counts as a
// failure; errMismatch also marks the run incorrect.
type operation func(ctx context.Context, client Client, worker, iteration int) error

var errMismatch = errors.New("value mismatch")

func main() {
	var (
		op          = flag.String("operation", "all", "Operation type: cache-hit, dynamic-value, cache-miss, multi-get, append, delete, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 1, "Number of concurrent workers")
		servers     = flag.String("servers", "localhost:11211", "Comma-separated list of memcached servers")
		poolType    = flag.String("pool", "channel", "Pool implementation: channel or puddle")
		maxSize     = flag.Int("max-size", 20, "Maximum number of routers")
		useBradfitz = flag.Bool("bradfitz", false, "Run against bradfitz/gomemcache as a baseline")
	)
	flag.Parse()

	fmt.Printf("asyncmc Benchmark Tool\n")
	fmt.Printf("======================\n")
	fmt.Printf("Operation: %s\n", *op)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Servers: %s\n", *servers)
	if *useBradfitz {
		fmt.Printf("Client: bradfitz/gomemcache\n")
	} else {
		fmt.Printf("Client: asyncmc (%s pool)\n", *poolType)
	}
	fmt.Println()

	client, closeClient := createClient(clientConfig{
		servers:     *servers,
		pool:        *poolType,
		maxSize:     *maxSize,
		concurrency: *concurrency,
		bradfitz:    *useBradfitz,
	})
	defer closeClient()

	fmt.Print("Testing connection...")
	if _, err := client.Get(context.Background(), "test-connection-key"); err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure memcached is running on %s\n", *servers)
		return
	}
	fmt.Println(" success!")
	fmt.Println()

	if OperationType(*op) == All {
		for _, o := range []OperationType{CacheHit, DynamicValue, CacheMiss, MultiGet, Append, Delete} {
			fmt.Printf("\n--- Running %s benchmark ---\n", o)
			printResult(runSingleOperation(client, o, *duration, *concurrency))
			time.Sleep(500 * time.Millisecond)
		}
		return
	}
	printResult(runSingleOperation(client, OperationType(*op), *duration, *concurrency))
}

func runSingleOperation(client Client, op OperationType, duration time.Duration, concurrency int) *BenchmarkResult {
	ctx := context.Background()

	var fn operation
	switch op {
	case CacheHit:
		// 1 set then gets
		value := []byte("cache-hit-value")
		if _, err := client.Set(ctx, asyncmc.Item{Key: "cache-hit-key", Value: value, Exptime: 3600}); err != nil {
			return failed(op, fmt.Errorf("failed to set initial value: %w", err))
		}
		fn = func(ctx context.Context, client Client, _, _ int) error {
			item, err := client.Get(ctx, "cache-hit-key")
			if err != nil {
				return err
			}
			if !item.Found || string(item.Value.([]byte)) != string(value) {
				return errMismatch
			}
			return nil
		}

	case DynamicValue:
		// 1 set then 1 get
		fn = func(ctx context.Context, client Client, worker, i int) error {
			key := fmt.Sprintf("dynamic-key-%d-%d", worker, i)
			value := fmt.Sprintf("dynamic-value-%d-%d", worker, i)
			if _, err := client.Set(ctx, asyncmc.Item{Key: key, Value: value, Exptime: 3600}); err != nil {
				return err
			}
			item, err := client.Get(ctx, key)
			if err != nil {
				return err
			}
			if item.Value != value {
				return errMismatch
			}
			return nil
		}

	case CacheMiss:
		fn = func(ctx context.Context, client Client, worker, i int) error {
			item, err := client.Get(ctx, fmt.Sprintf("nonexistent-key-%d-%d", worker, i))
			if err != nil {
				return err
			}
			if item.Found {
				return errMismatch
			}
			return nil
		}

	case MultiGet:
		keys := make([]string, 10)
		for i := range keys {
			keys[i] = fmt.Sprintf("multi-key-%d", i)
			if _, err := client.Set(ctx, asyncmc.Item{Key: keys[i], Value: i, Exptime: 3600}); err != nil {
				return failed(op, fmt.Errorf("failed to set initial value: %w", err))
			}
		}
		fn = func(ctx context.Context, client Client, _, _ int) error {
			items, err := client.MultiGet(ctx, keys...)
			if err != nil {
				return err
			}
			for i, item := range items {
				if item.Value != int64(i) {
					return errMismatch
				}
			}
			return nil
		}

	case Append:
		fn = func(ctx context.Context, client Client, worker, i int) error {
			key := fmt.Sprintf("append-key-%d", worker)
			if i%100 == 0 {
				_, err := client.Set(ctx, asyncmc.Item{Key: key, Value: []byte{}, Exptime: 3600})
				return err
			}
			_, err := client.Append(ctx, asyncmc.Item{Key: key, Value: []byte("x")})
			return err
		}

	case Delete:
		// 1 set then 1 delete
		fn = func(ctx context.Context, client Client, worker, i int) error {
			key := fmt.Sprintf("delete-key-%d-%d", worker, i)
			if _, err := client.Set(ctx, asyncmc.Item{Key: key, Value: []byte("v")}); err != nil {
				return err
			}
			deleted, err := client.Delete(ctx, key)
			if err != nil {
				return err
			}
			if !deleted {
				return errMismatch
			}
			return nil
		}

	default:
		return failed(op, fmt.Errorf("unknown operation: %s", op))
	}

	return runWorkers(client, op, fn, duration, concurrency)
}

func runWorkers(client Client, op OperationType, fn operation, duration time.Duration, concurrency int) *BenchmarkResult {
	ctx := context.Background()

	result := &BenchmarkResult{Operation: op, Correctness: true}
	var totalOps, successes, failures, totalLatency int64
	var mismatch atomic.Bool

	startTime := time.Now()
	var wg sync.WaitGroup

	for worker := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := 0; time.Since(startTime) < duration; i++ {
				opStart := time.Now()
				err := fn(ctx, client, worker, i)
				latency := time.Since(opStart)

				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(latency))

				switch {
				case err == nil:
					atomic.AddInt64(&successes, 1)
				case errors.Is(err, errMismatch):
					mismatch.Store(true)
					atomic.AddInt64(&failures, 1)
				default:
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	wg.Wait()

	result.Duration = time.Since(startTime)
	result.TotalOps = totalOps
	result.Successes = successes
	result.Failures = failures
	if mismatch.Load() {
		result.Correctness = false
		result.ErrorMessage = "Value mismatch"
	}

	if totalOps > 0 {
		result.AvgLatency = time.Duration(totalLatency / totalOps)
		result.OpsPerSecond = float64(totalOps) / result.Duration.Seconds()
	}

	return result
}

func failed(op OperationType, err error) *BenchmarkResult {
	return &BenchmarkResult{Operation: op, Correctness: false, ErrorMessage: err.Error()}
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation:     %s\n", result.Operation)
	if result.ErrorMessage != "" && result.TotalOps == 0 {
		fmt.Printf("Error:         %s\n", result.ErrorMessage)
		return
	}
	fmt.Printf("Duration:      %v\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Total ops:     %d\n", result.TotalOps)
	fmt.Printf("Successes:     %d\n", result.Successes)
	fmt.Printf("Failures:      %d\n", result.Failures)
	fmt.Printf("Avg latency:   %v\n", result.AvgLatency)
	fmt.Printf("Ops/second:    %.2f\n", result.OpsPerSecond)
	if result.Correctness {
		fmt.Printf("Correctness:   OK\n")
	} else {
		fmt.Printf("Correctness:   FAILED (%s)\n", result.ErrorMessage)
	}
}
