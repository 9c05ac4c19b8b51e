package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/annexlabs/annex/pkg/api/rest"
	"github.com/annexlabs/annex/pkg/config"
	"github.com/annexlabs/annex/pkg/hnsw"
	"github.com/annexlabs/annex/pkg/observability"
	"github.com/annexlabs/annex/pkg/search"
)

func main() {
	root := &cobra.Command{
		Use:   "annex",
		Short: "Approximate nearest-neighbor index",
		Long:  "annex — a concurrent in-memory HNSW index with snapshots and an HTTP API.",
	}

	var logLevel string
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger := observability.NewLogger(observability.ParseLogLevel(logLevel), os.Stderr)
		observability.SetGlobalLogger(logger)
	}

	root.AddCommand(serveCmd())
	root.AddCommand(buildCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(infoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ---- annex serve -----------------------------------------------------------

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  "Load configuration from the environment, optionally restore a snapshot, and serve the index over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := observability.GetGlobalLogger()

			var index *hnsw.Index
			if cfg.Index.SnapshotPath != "" {
				if _, err := os.Stat(cfg.Index.SnapshotPath); err == nil {
					start := time.Now()
					restored, err := hnsw.NewFromDump(cfg.Index.SnapshotPath, hnsw.MetricByName(cfg.Index.Metric))
					if err != nil {
						return fmt.Errorf("restore snapshot: %w", err)
					}
					index = restored
					logger.Info("Snapshot restored", map[string]interface{}{
						"path":     cfg.Index.SnapshotPath,
						"size":     index.Size(),
						"duration": time.Since(start),
					})
				}
			}

			if index == nil {
				fresh, err := hnsw.New(cfg.Index.Dimensions, cfg.Index.Settings())
				if err != nil {
					return err
				}
				index = fresh
			}

			cached := newCachedIndex(index, cfg)
			metrics := observability.NewMetrics(nil)
			metrics.UpdateIndex(index.Size(), index.MaxLayer())

			server, err := rest.NewServer(cfg, cached, metrics, logger)
			if err != nil {
				return err
			}
			if err := server.Start(); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			return server.Stop()
		},
	}
}

func newCachedIndex(index *hnsw.Index, cfg *config.Config) *search.CachedIndex {
	capacity := 0
	if cfg.Cache.Enabled {
		capacity = cfg.Cache.Capacity
	}
	return search.NewCachedIndex(index, capacity, cfg.Cache.TTL)
}

// ---- annex build -----------------------------------------------------------

func buildCmd() *cobra.Command {
	var (
		dims       int
		metricName string
		m          int
		efC        int
		sequential bool
	)

	cmd := &cobra.Command{
		Use:   "build <dataset> <snapshot>",
		Short: "Ingest a dataset file and write a snapshot",
		Long: "Read 'name,v0,...,vD-1' lines from the dataset file, bulk-load them " +
			"into a fresh index, and save the result.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetGlobalLogger()

			items, err := loadDataset(args[0], dims)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("dataset %s is empty", args[0])
			}

			settings := hnsw.DefaultSettings()
			settings.Metric = hnsw.MetricByName(metricName)
			if settings.Metric == nil {
				return fmt.Errorf("unknown metric %q", metricName)
			}
			if m > 0 {
				settings.M = m
				settings.M0 = 2 * m
			}
			if efC > 0 {
				settings.EfConstruction = efC
			}

			index, err := hnsw.New(len(items[0].Descriptor), settings)
			if err != nil {
				return err
			}

			start := time.Now()
			progress := func(processed, total int) {
				if processed%1000 == 0 || processed == total {
					fmt.Fprintf(os.Stderr, "\rIndexing %d/%d…", processed, total)
				}
			}

			var result *hnsw.BatchResult
			if sequential {
				result = index.BatchInsertSequential(items, progress)
			} else {
				result = index.BatchInsert(items, progress)
			}
			fmt.Fprintln(os.Stderr)

			for _, err := range result.Errors {
				logger.Warn("Item rejected", map[string]interface{}{"error": err.Error()})
			}

			logger.Info("Dataset indexed", map[string]interface{}{
				"items":    result.SuccessCount,
				"rejected": result.FailureCount,
				"duration": time.Since(start),
			})

			if err := index.Save(args[1]); err != nil {
				return err
			}

			fmt.Printf("Indexed %d items into %s\n", result.SuccessCount, args[1])
			return nil
		},
	}

	cmd.Flags().IntVar(&dims, "dims", 0, "expected vector dimension (0 = take from the first line)")
	cmd.Flags().StringVar(&metricName, "metric", "euclidean", "distance metric")
	cmd.Flags().IntVar(&m, "m", 0, "target degree M (0 = default)")
	cmd.Flags().IntVar(&efC, "ef-construction", 0, "construction beam width (0 = default)")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "insert items one by one in file order")

	return cmd
}

// ---- annex query -----------------------------------------------------------

func queryCmd() *cobra.Command {
	var (
		k          int
		metricName string
	)

	cmd := &cobra.Command{
		Use:   "query <snapshot> <v0,v1,...>",
		Short: "Run one k-NN query against a snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := hnsw.NewFromDump(args[0], hnsw.MetricByName(metricName))
			if err != nil {
				return err
			}

			query, err := parseVector(strings.Split(args[1], ","))
			if err != nil {
				return err
			}

			results, err := index.Search(query, k)
			if err != nil {
				return err
			}

			sort.Slice(results, func(i, j int) bool {
				return results[i].Distance < results[j].Distance
			})

			for _, result := range results {
				fmt.Printf("%s\t%g\n", result.Name, result.Distance)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&k, "k", 10, "number of neighbours to return")
	cmd.Flags().StringVar(&metricName, "metric", "euclidean", "distance metric")

	return cmd
}

// ---- annex info ------------------------------------------------------------

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <snapshot>",
		Short: "Print snapshot statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := hnsw.NewFromDump(args[0], nil)
			if err != nil {
				return err
			}

			stats := index.GetStats()
			fmt.Printf("items:            %d\n", stats.Size)
			fmt.Printf("dimensions:       %d\n", stats.DescriptorSize)
			fmt.Printf("max layer:        %d\n", stats.MaxLayer)
			fmt.Printf("M / M0:           %d / %d\n", stats.M, stats.M0)
			fmt.Printf("efConstruction:   %d\n", stats.EfConstruction)
			fmt.Printf("efSearch:         %d\n", stats.EfSearch)

			for layer := 0; layer <= stats.MaxLayer; layer++ {
				fmt.Printf("layer %d:          %d nodes\n", layer, stats.NodesPerLayer[layer])
			}
			return nil
		},
	}
}

// loadDataset reads 'name,v0,...,vD-1' lines. dims 0 takes the dimension
// from the first line; later lines must match it, and a line that does
// not fails the whole load.
func loadDataset(path string, dims int) ([]hnsw.Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var items []hnsw.Item
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			return nil, fmt.Errorf("dataset line %d: want 'name,v0,...', got %q", lineNo, line)
		}

		descriptor, err := parseVector(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", lineNo, err)
		}
		if dims == 0 {
			dims = len(descriptor)
		}
		if len(descriptor) != dims {
			return nil, fmt.Errorf("dataset line %d: %d values, want %d", lineNo, len(descriptor), dims)
		}

		items = append(items, hnsw.Item{Name: fields[0], Descriptor: descriptor})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	return items, nil
}

func parseVector(fields []string) ([]float64, error) {
	vector := make([]float64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", field)
		}
		vector[i] = v
	}
	return vector, nil
}
