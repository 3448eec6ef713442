package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/geo-dedupe/internal/config"
	"github.com/geo-dedupe/internal/dedupe"
	"github.com/geo-dedupe/internal/web"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	rootCmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Geotagged record deduplication",
		Long:  `Deduplicates geotagged entity records (places, addresses, businesses) arriving as multiple overlapping datasets`,
	}

	rootCmd.AddCommand(createGeojsonCmd())
	rootCmd.AddCommand(createServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// createGeojsonCmd creates the pipeline subcommand
func createGeojsonCmd() *cobra.Command {
	opts := dedupe.DefaultOptions()
	outputPath := config.GetEnv("DEDUPE_OUTPUT", "deduped.jsonl")

	cmd := &cobra.Command{
		Use:   "geojson [files...]",
		Short: "Deduplicate GeoJSON record files",
		Long:  `Runs the full pipeline over one or more record files: ingest, block, resolve, and write annotated responses`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			out, closeOut, err := openOutput(outputPath)
			if err != nil {
				log.Fatalf("Failed to open output: %v", err)
			}

			pipeline, err := dedupe.NewPipeline(opts)
			if err != nil {
				log.Fatalf("Failed to configure pipeline: %v", err)
			}

			if err := pipeline.Run(args, out); err != nil {
				log.Fatalf("Deduplication failed: %v", err)
			}
			if err := pipeline.Close(); err != nil {
				log.Fatalf("Failed to close store: %v", err)
			}
			if err := closeOut(); err != nil {
				log.Fatalf("Failed to close output: %v", err)
			}
			pipeline.PrintSummary()
		},
	}

	cmd.Flags().BoolVar(&opts.AddressOnly, "address-only", false, "Compare address fields only, ignoring names")
	cmd.Flags().BoolVar(&opts.Geocode, "geocode", false, "Anchor comparisons on coordinate-bearing records")
	cmd.Flags().BoolVar(&opts.MatchUnits, "match-units", false, "Require sub-unit designators to match")
	cmd.Flags().BoolVar(&opts.CheckPhones, "check-phones", false, "Treat conflicting phone numbers as counter-evidence")
	cmd.Flags().BoolVar(&opts.FuzzyStreets, "fuzzy-streets", false, "Allow near-spelled street names to match")
	cmd.Flags().StringVar(&opts.RelevanceModel, "relevance", opts.RelevanceModel, "Word relevance model: tfidf or infogain")
	cmd.Flags().Float64Var(&opts.LikelyThreshold, "likely-threshold", opts.LikelyThreshold, "Similarity at or above which a pair is a likely duplicate")
	cmd.Flags().Float64Var(&opts.ReviewThreshold, "review-threshold", opts.ReviewThreshold, "Similarity at or above which a pair needs review")
	cmd.Flags().BoolVar(&opts.DupesOnly, "dupes-only", false, "Output only records involved in duplicate relationships")
	cmd.Flags().StringVar(&opts.DBPath, "db", config.GetEnv("DEDUPE_DB_PATH", opts.DBPath), "Record store directory")
	cmd.Flags().StringVar(&opts.TempDir, "temp-dir", config.GetEnv("DEDUPE_TEMP_DIR", ""), "Directory for spill and sort files")
	cmd.Flags().StringVar(&opts.ModelOut, "model-out", "", "Write the finalized relevance model to this path")
	cmd.Flags().IntVar(&opts.FlushEvery, "flush-every", opts.FlushEvery, "Records per store write batch")
	cmd.Flags().IntVar(&opts.Workers, "workers", config.GetEnvInt("DEDUPE_WORKERS", opts.Workers), "Parallel comparison workers")
	cmd.Flags().StringVar(&opts.Sorter, "sorter", opts.Sorter, "Spill sorter: command or merge")
	cmd.Flags().StringVar(&opts.SortBuffer, "sort-buffer", config.GetEnv("DEDUPE_SORT_BUFFER", ""), "Buffer size passed to sort(1), e.g. 1G")
	cmd.Flags().BoolVar(&opts.Verbose, "verbose", false, "Log comparison and timing detail")
	cmd.Flags().IntVar(&opts.GeohashPrecision, "geohash-precision", 0, "Geohash cell precision for location blocking")
	cmd.Flags().StringVarP(&outputPath, "output", "o", outputPath, "Output path (- for stdout, .gz compresses)")

	return cmd
}

// openOutput resolves the output destination. "-" selects stdout so
// progress printing stays separate from piped results by default.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, f.Close, nil
	}
	gz := gzip.NewWriter(f)
	closeAll := func() error {
		if err := gz.Close(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return gz, closeAll, nil
}

// createServeCmd creates the review server subcommand
func createServeCmd() *cobra.Command {
	cfg := web.Config{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve deduplication results for review",
		Run: func(cmd *cobra.Command, args []string) {
			server, err := web.NewServer(cfg)
			if err != nil {
				log.Fatalf("Failed to start server: %v", err)
			}
			if err := server.Start(); err != nil {
				log.Fatalf("Server failed: %v", err)
			}
		},
	}

	cmd.Flags().StringVar(&cfg.Host, "host", config.GetEnv("DEDUPE_HOST", "127.0.0.1"), "Listen address")
	cmd.Flags().IntVar(&cfg.Port, "port", config.GetEnvInt("DEDUPE_PORT", 8095), "Listen port")
	cmd.Flags().StringVar(&cfg.DBPath, "db", config.GetEnv("DEDUPE_DB_PATH", "dedupe.db"), "Record store directory")
	cmd.Flags().StringVar(&cfg.ResultsPath, "results", config.GetEnv("DEDUPE_OUTPUT", "deduped.jsonl"), "Results file from a pipeline run")
	cmd.Flags().StringVar(&cfg.AuditPath, "audit-log", "", "Append review decisions to this file")
	cmd.Flags().StringVar(&cfg.APIKey, "api-key", config.GetEnv("DEDUPE_API_KEY", ""), "Require this X-API-Key header on API requests")

	return cmd
}
