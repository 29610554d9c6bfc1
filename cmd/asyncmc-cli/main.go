package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ErDmKo/asyncmc"
	"github.com/ErDmKo/asyncmc/config"
	"github.com/ErDmKo/asyncmc/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const usage = `Commands:
  get <key>                         - Get a value by key
  mget <key1> <key2> ...            - Get multiple keys at once
  set <key> <value> [exptime]       - Store a value
  add <key> <value> [exptime]       - Store only if the key is absent
  replace <key> <value> [exptime]   - Store only if the key exists
  append <key> <value>              - Append to an existing value
  prepend <key> <value>             - Prepend to an existing value
  delete <key>                      - Delete a key
  flush                             - Invalidate every item on every server
  stats [group]                     - Show server statistics
  version                           - Show server versions
  client                            - Show client and pool statistics
  quit                              - Exit the CLI`

func main() {
	var (
		configPath  = flag.String("config", "", "Path to the YAML configuration file")
		servers     = flag.String("servers", "", "Comma-separated list of memcached servers (overrides the config)")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9150")
		initConfig  = flag.Bool("init", false, "Print a sample configuration and exit")
	)
	flag.Parse()

	if *initConfig {
		if err := config.WriteSample(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *servers != "" {
		cfg.Servers = strings.Split(*servers, ",")
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = *metricsAddr
	}

	logger, closeLog, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	client, err := cfg.NewClient(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if cfg.Metrics.Enabled {
		serveMetrics(cfg.Metrics, client, logger)
	}

	fmt.Println("asyncmc CLI")
	fmt.Println("===========")
	fmt.Printf("Servers: %s\n", strings.Join(client.Servers(), ", "))
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	repl(os.Stdin, os.Stdout, client)
}

func serveMetrics(cfg config.MetricsConfig, client *asyncmc.Client, logger *slog.Logger) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.NewCollector(cfg.Namespace, client),
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", "addr", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}

func repl(in io.Reader, out io.Writer, client *asyncmc.Client) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		if command == "quit" || command == "exit" {
			fmt.Fprintln(out, "Goodbye!")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		run(ctx, out, client, command, parts[1:])
		cancel()
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(out, "Error reading input: %v\n", err)
	}
}

func run(ctx context.Context, out io.Writer, client *asyncmc.Client, command string, args []string) {
	start := time.Now()
	took := func() time.Duration { return time.Since(start).Round(time.Microsecond) }

	switch command {
	case "get":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: get <key>")
			return
		}
		item, err := client.Get(ctx, args[0])
		if err != nil {
			fmt.Fprintf(out, "Error: %v (took %v)\n", err, took())
			return
		}
		if !item.Found {
			fmt.Fprintf(out, "Key not found (took %v)\n", took())
			return
		}
		fmt.Fprintf(out, "Value: %s (flags %d, took %v)\n", formatValue(item.Value), item.Flags, took())

	case "mget", "multi-get":
		if len(args) == 0 {
			fmt.Fprintln(out, "Usage: mget <key1> <key2> ...")
			return
		}
		items, err := client.MultiGet(ctx, args...)
		if err != nil {
			fmt.Fprintf(out, "Error: %v (took %v)\n", err, took())
			return
		}
		found := 0
		for _, item := range items {
			if item.Found {
				found++
				fmt.Fprintf(out, "  %s: %s\n", item.Key, formatValue(item.Value))
			} else {
				fmt.Fprintf(out, "  %s: <not found>\n", item.Key)
			}
		}
		fmt.Fprintf(out, "Retrieved %d out of %d keys (took %v)\n", found, len(items), took())

	case "set", "add", "replace", "append", "prepend":
		if len(args) < 2 || len(args) > 3 {
			fmt.Fprintf(out, "Usage: %s <key> <value> [exptime]\n", command)
			return
		}
		item := asyncmc.Item{Key: args[0], Value: args[1]}
		if len(args) == 3 {
			exptime, err := strconv.Atoi(args[2])
			if err != nil {
				fmt.Fprintf(out, "Invalid exptime: %v\n", err)
				return
			}
			item.Exptime = exptime
		}

		var stored bool
		var err error
		switch command {
		case "set":
			stored, err = client.Set(ctx, item)
		case "add":
			stored, err = client.Add(ctx, item)
		case "replace":
			stored, err = client.Replace(ctx, item)
		case "append":
			stored, err = client.Append(ctx, item)
		case "prepend":
			stored, err = client.Prepend(ctx, item)
		}
		if err != nil {
			fmt.Fprintf(out, "Error: %v (took %v)\n", err, took())
			return
		}
		if !stored {
			fmt.Fprintf(out, "Not stored (took %v)\n", took())
			return
		}
		fmt.Fprintf(out, "Stored successfully (took %v)\n", took())

	case "delete", "del":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: delete <key>")
			return
		}
		deleted, err := client.Delete(ctx, args[0])
		if err != nil {
			fmt.Fprintf(out, "Error: %v (took %v)\n", err, took())
			return
		}
		if !deleted {
			fmt.Fprintf(out, "Key not found (took %v)\n", took())
			return
		}
		fmt.Fprintf(out, "Delete successful (took %v)\n", took())

	case "flush":
		if err := client.FlushAll(ctx); err != nil {
			fmt.Fprintf(out, "Error: %v (took %v)\n", err, took())
			return
		}
		fmt.Fprintf(out, "Flushed (took %v)\n", took())

	case "stats":
		stats, err := client.Stats(ctx, args...)
		if err != nil {
			fmt.Fprintf(out, "Error: %v (took %v)\n", err, took())
			return
		}
		for _, addr := range sortedKeys(stats) {
			fmt.Fprintf(out, "Server %s:\n", addr)
			for _, name := range sortedKeys(stats[addr]) {
				fmt.Fprintf(out, "  %s: %s\n", name, stats[addr][name])
			}
		}

	case "version":
		versions, err := client.Version(ctx)
		if err != nil {
			fmt.Fprintf(out, "Error: %v (took %v)\n", err, took())
			return
		}
		for _, addr := range sortedKeys(versions) {
			fmt.Fprintf(out, "  %s: %s\n", addr, versions[addr])
		}

	case "client":
		cs := client.ClientStats()
		ps := client.PoolStats()
		fmt.Fprintf(out, "Gets: %d (hits %d)\n", cs.Gets, cs.GetHits)
		fmt.Fprintf(out, "Stores: %d, Deletes: %d, Flushes: %d\n", cs.Stores, cs.Deletes, cs.Flushes)
		fmt.Fprintf(out, "Errors: %d, Dead marks: %d\n", cs.Errors, cs.DeadMarks)
		fmt.Fprintf(out, "Routers: total=%d idle=%d active=%d\n", ps.TotalRouters, ps.IdleRouters, ps.ActiveRouters)

	case "help":
		fmt.Fprintln(out, usage)

	default:
		fmt.Fprintf(out, "Unknown command: %s. Type 'help' for available commands.\n", command)
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprintf("%v (%T)", v, v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
