package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jkbrsn/axiosly"
	"github.com/jkbrsn/axiosly/internal/collector"
)

var tailOpts struct {
	addr string
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print records from a collector's live stream",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return collector.Tail(cmd.Context(), tailOpts.addr, cfg.Collector.APIKey, func(rec axiosly.MetricsRecord) {
			fmt.Println(rec.String())
		})
	},
}

func init() {
	tailCmd.Flags().StringVar(&tailOpts.addr, "addr", "ws://localhost:8090/v1/stream", "collector stream URL")
}
