package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/batchkv/go-batchkv"
	"github.com/batchkv/go-batchkv/client"
	"github.com/batchkv/go-batchkv/report"
	"github.com/batchkv/go-batchkv/workload"
)

var (
	writeOps   []string
	iterations int
	verify     bool
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a random batch with one or more encodings",
	Long: `write generates total_items random items once and writes them with every
encoding given by --op, --iterations times each, printing one line per run
and a total per encoding.`,
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().StringSliceVar(&writeOps, "op", []string{batchkv.EncodingSetWithExpiry.String()},
		"encodings to run: mset, mset+expire, set+expiry, manual set+expiry")
	writeCmd.Flags().IntVar(&iterations, "iterations", 1, "runs per encoding")
	writeCmd.Flags().BoolVar(&verify, "verify", false, "read the batch back after every run and compare values")
	rootCmd.AddCommand(writeCmd)
}

func runWrite(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	encs := make([]batchkv.Encoding, 0, len(writeOps))
	for _, op := range writeOps {
		enc, err := batchkv.ParseEncoding(op)
		if err != nil {
			return err
		}
		encs = append(encs, enc)
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close(ctx)

	c, err := client.New(ctx, e.client)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	items := workload.BuildBatch(e.cfg.TotalItems, int(e.cfg.KeySize), int(e.cfg.ValueSize))
	report.Summarize(items).Print(out, e.client.Describe())

	sink := report.TextSink{W: out}
	var totals report.Collector
	ttl := e.cfg.TTLDuration()

	for _, enc := range encs {
		for i := 0; i < iterations; i++ {
			obs := report.Measure(enc.String(), items, func() error {
				return write(ctx, c, enc, items, ttl)
			})
			sink.Report(obs)
			totals.Report(obs)

			if obs.Err == nil && verify {
				if err := readBack(ctx, c, items, e.cfg.BatchSize); err != nil {
					return err
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if iterations > 1 {
			fmt.Fprintf(out, "total %s\n", totals.Total(enc.String()))
		}
	}
	return nil
}

func write(ctx context.Context, c batchkv.Client, enc batchkv.Encoding, items []batchkv.Item, ttl time.Duration) error {
	switch enc {
	case batchkv.EncodingMSetExpire:
		return c.PipelinedMultiSetWithExpiry(ctx, items, ttl)
	case batchkv.EncodingSetWithExpiry:
		return c.PipelinedSetWithExpiry(ctx, items, ttl)
	case batchkv.EncodingSetWithExpiryManual:
		return c.PipelinedSetWithExpiryManual(ctx, items, ttl)
	default:
		return c.MultiSet(ctx, items)
	}
}

// readBack fetches items in MGET calls of at most batchSize keys.
func readBack(ctx context.Context, c batchkv.Client, items []batchkv.Item, batchSize int) error {
	for _, chunk := range batchkv.Chunks(items, batchSize) {
		values, err := c.MultiGet(ctx, batchkv.Keys(chunk)...)
		if err != nil {
			return err
		}
		for i, it := range chunk {
			if !bytes.Equal(values[i], it.Value) {
				return fmt.Errorf("value mismatch for key %q", it.Key)
			}
		}
	}
	return nil
}
