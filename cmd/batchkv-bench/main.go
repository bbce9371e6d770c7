// Command batchkv-bench writes synthetic batches to a store and prints
// throughput per write strategy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "batchkv-bench",
	Short: "Benchmark batched writes over pooled and unpooled clients",
	Long: `batchkv-bench generates a batch of random items and writes it with one
of the supported encodings, either over a single connection or chunked in
parallel over a connection pool.

Settings come from the config file, a .env file and REDIS_BENCH_* variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath  string
	logLevel    string
	clientKind  string
	metricsAddr string
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "batchkv-bench.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&clientKind, "client", "", "client kind, pooled or unpooled (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
