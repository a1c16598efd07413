package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jkbrsn/axiosly"
)

var probeOpts struct {
	count    int
	method   string
	interval time.Duration
}

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Send requests through a monitored client and print the records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd.Context(), args[0])
	},
}

func init() {
	probeCmd.Flags().IntVarP(&probeOpts.count, "count", "n", 1, "number of requests to send")
	probeCmd.Flags().StringVarP(&probeOpts.method, "method", "X", http.MethodGet, "HTTP method")
	probeCmd.Flags().DurationVar(&probeOpts.interval, "interval", time.Second, "pause between requests")
}

func runProbe(ctx context.Context, target string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := append(cfg.Monitor.Options(), axiosly.WithLogger(log.Logger))
	client, err := axiosly.NewMonitoredClient("", opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	for i := range probeOpts.count {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(probeOpts.interval):
			}
		}

		req, err := client.NewRequest(ctx, probeOpts.method, target, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
	}

	for _, rec := range client.Records() {
		fmt.Println(rec.String())
	}

	if client.Forwarder().Configured() {
		n := client.Flush(ctx)
		log.Info().Int("records", n).Msg("flushed records to backend")
	}
	return nil
}
