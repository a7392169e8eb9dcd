package maps

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dMap/cmd/util"
	"github.com/ValentinKolb/dMap/rpc/client"
	"github.com/ValentinKolb/dMap/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for cache proxies",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// benchmark is a single named test, op is called with the key index of the current iteration
type benchmark struct {
	name    string
	prepare func(ctx context.Context, key string)
	op      func(ctx context.Context, key string) error
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for cache proxies")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	config := session.Config()
	fmt.Println(config.String())
	fmt.Printf("Map: %s\n", namedMap.Name())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	put := func(value any) func(ctx context.Context, key string) {
		return func(ctx context.Context, key string) {
			if _, _, err := namedMap.Put(ctx, key, value); err != nil {
				log.Printf("(prepare) - error putting key: %v\n", err)
			}
		}
	}

	benchmarks := []benchmark{
		{
			name: "put",
			op: func(ctx context.Context, key string) error {
				_, _, err := namedMap.Put(ctx, key, "test")
				return err
			},
		},
		{
			name: "put-large",
			op: func(ctx context.Context, key string) error {
				_, _, err := namedMap.Put(ctx, key, largeValue)
				return err
			},
		},
		{
			name:    "get",
			prepare: put("test"),
			op: func(ctx context.Context, key string) error {
				_, _, err := namedMap.Get(ctx, key)
				return err
			},
		},
		{
			name:    "remove",
			prepare: put("test"),
			op: func(ctx context.Context, key string) error {
				_, _, err := namedMap.Remove(ctx, key)
				return err
			},
		},
		{
			name:    "has",
			prepare: put("test"),
			op: func(ctx context.Context, key string) error {
				_, err := namedMap.ContainsKey(ctx, key)
				return err
			},
		},
		{
			name: "has-not",
			op: func(ctx context.Context, key string) error {
				_, err := namedMap.ContainsKey(ctx, key)
				return err
			},
		},
		{
			name:    "put-with-listener",
			prepare: listenDuringBenchmark(ctx),
			op: func(ctx context.Context, key string) error {
				_, _, err := namedMap.Put(ctx, key, "test")
				return err
			},
		},
	}

	// Create results map
	results := make(map[string]testing.BenchmarkResult)
	for _, bench := range benchmarks {
		result := runBenchmark(ctx, bench)
		results[bench.name] = result
		printResult(bench.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, &config); err != nil {
			return err
		}
	}

	return nil
}

// runBenchmark runs one benchmark in parallel and removes its keys afterwards
func runBenchmark(ctx context.Context, bench benchmark) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip(bench.name) {
			return
		}

		// prepare keys
		getKey, iter := getKeys(bench.name)
		if bench.prepare != nil {
			iter(func(k string) { bench.prepare(ctx, k) })
		}

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, _, err := namedMap.Remove(ctx, k); err != nil {
					log.Printf("(%s) - error removing key: %v\n", bench.name, err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		var counter atomic.Int64
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if err := bench.op(ctx, getKey(int(counter.Add(1)))); err != nil {
					log.Printf("(%s) - error: %v\n", bench.name, err)
				}
			}
		})
	})
}

// listenDuringBenchmark returns a prepare step that registers one key listener per key, so that
// every put of the benchmark produces an event that crosses the event stream
func listenDuringBenchmark(ctx context.Context) func(ctx context.Context, key string) {
	var received atomic.Int64
	listener := client.NewMapListener[string, any]().
		WhenAny(func(*client.MapEvent[string, any]) {
			received.Add(1)
		})
	return func(_ context.Context, key string) {
		if err := namedMap.AddKeyListener(ctx, listener, key, true); err != nil {
			log.Printf("(put-with-listener) - error adding listener: %v\n", err)
		}
	}
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	return slices.Contains(perfSkip, test)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := range perfKeySpread {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// opsPerSecond returns ns/op and ops/sec of a result, zero for skipped tests
func opsPerSecond(result testing.BenchmarkResult) (float64, float64) {
	if result.NsPerOp() == 0 {
		return 0, 0
	}
	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	return nsPerOp, 1.0 / (nsPerOp / 1e9)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp, opsPerSec := opsPerSecond(result)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "Format", "Compression",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results in a stable order
	tests := make([]string, 0, len(results))
	for test := range results {
		tests = append(tests, test)
	}
	slices.Sort(tests)

	for _, test := range tests {
		result := results[test]
		nsPerOp, opsPerSec := opsPerSecond(result)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			strconv.FormatBool(result.NsPerOp() == 0),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			config.Format,
			strconv.FormatBool(config.Transport.Compression),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
