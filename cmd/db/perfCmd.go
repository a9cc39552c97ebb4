package db

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/ibs/cmd/util"
	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/ibs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf [store]",
		Short:   "Performance testing tool for a store of the database",
		Long:    `Runs add, put, get, query, delete and mixed benchmarks against a declared store. Records are written under "__perf" string keys and deleted afterwards.`,
		Args:    cobra.ExactArgs(1),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__perf"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. add,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark"))
	key = "key-spread"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfKeySpread = viper.GetInt("key-spread")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	if perfKeySpread < 1 {
		return fmt.Errorf("key-spread must be positive")
	}
	return nil
}

// perfStore wraps the store under test and builds its records
type perfStore struct {
	*ibs.Store
	ctx     context.Context
	keyPath engine.KeyPath
	index   string // first declared index (empty if none)
}

func (p *perfStore) record(key string) engine.Record {
	rec := engine.Record{"value": "test", "group": key[len(key)-1:]}
	p.log("record", p.keyPath.Inject(rec, key))
	return rec
}

func (p *perfStore) log(test string, err error) {
	if err != nil {
		plog.Warningf("(%s) - %v", test, err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	s, err := store(args[0])
	if err != nil {
		return err
	}
	cfg := s.Config()
	keyPath := engine.Path(cfg.KeyPath)
	if keyPath.Compound() {
		return fmt.Errorf("store %s has a compound key path", args[0])
	}
	p := &perfStore{Store: s, ctx: ctx(cmd), keyPath: keyPath}
	if len(cfg.Indexes) > 0 {
		p.index = cfg.Indexes[0].Name
	}

	fmt.Println("Performance testing tool for iBS stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Backend: %s (%s)\n", viper.GetString("backend"), viper.GetString("path"))
	fmt.Printf("Database: %s v%d, store %s\n", database.Name(), database.Version(), s.Name())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	bench := func(test string, prepare bool, op func(key string) error) {
		results[test] = testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test) {
				return
			}

			getKey, iter := getKeys(test)

			if prepare {
				iter(func(k string) {
					_, err := p.Update(p.ctx, p.record(k))
					p.log(test, err)
				})
			}

			b.Cleanup(func() {
				keys := make([]any, 0, perfKeySpread)
				iter(func(k string) {
					keys = append(keys, k)
				})
				p.log(test, p.Deletes(p.ctx, keys))
			})

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					p.log(test, op(getKey(counter)))
					counter++
				}
			})
		})
		printResult(test, results[test])
	}

	bench("add", false, func(k string) error {
		// keys repeat after key-spread operations, duplicates are expected
		_, err := p.Add(p.ctx, p.record(k))
		if errors.Is(err, ibs.ErrDuplicateKey) {
			return nil
		}
		return err
	})
	bench("put", false, func(k string) error {
		_, err := p.Update(p.ctx, p.record(k))
		return err
	})
	bench("get", true, func(k string) error {
		_, err := p.Get(p.ctx, k)
		return err
	})
	if p.index != "" {
		bench("query", true, func(k string) error {
			_, err := p.QueryKeys(p.ctx, p.index, engine.Only(k[len(k)-1:]))
			return err
		})
	} else {
		fmt.Printf("%-20sskipped (store has no index)\n", "query")
	}
	bench("delete", true, func(k string) error {
		return p.Delete(p.ctx, k)
	})
	var mixed atomic.Int64
	bench("mixed", true, func(k string) error {
		var err error
		switch mixed.Add(1) % 4 {
		case 0:
			_, err = p.Update(p.ctx, p.record(k))
		case 1:
			_, err = p.Get(p.ctx, k)
		case 2:
			err = p.Delete(p.ctx, k)
		case 3:
			_, err = p.Count(p.ctx)
		}
		return err
	})

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, s.Name()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
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

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, storeName string) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Backend", "Path", "Database", "Version", "Store",
		"Threads", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			viper.GetString("backend"),
			viper.GetString("path"),
			database.Name(),
			strconv.FormatUint(database.Version(), 10),
			storeName,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
