package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jkbrsn/axiosly/internal/collector"
)

var collectOpts struct {
	addr     string
	capacity int
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a collector receiving forwarded records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr := cfg.Collector.Addr
		if cmd.Flags().Changed("addr") {
			addr = collectOpts.addr
		}
		if cfg.Collector.APIKey == "" {
			log.Warn().Msg("no collector API key configured, accepting unauthenticated records")
		}

		srv := collector.NewServer(collector.Config{
			APIKey:   cfg.Collector.APIKey,
			Capacity: collectOpts.capacity,
			Logger:   log.Logger,
		})
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectOpts.addr, "addr", ":8090", "listen address")
	collectCmd.Flags().IntVar(&collectOpts.capacity, "capacity", collector.DefaultCapacity, "records kept in memory")
}
