package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hed1ad/anomalyscore/internal/server"
	"github.com/hed1ad/anomalyscore/pkg/detectors/iforest"
	"github.com/hed1ad/anomalyscore/pkg/metrics"
)

type serveCmdConfig struct {
	addr string
}

func serveCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &serveCmdConfig{}
	cmd := &cobra.Command{
		Use:   "serve <detector>",
		Short: "Serve a detector over HTTP",
		Long:  `Rebuild the detector and answer POST /score requests, with /healthz and /metrics alongside`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m, err := metrics.New(reg)
			if err != nil {
				return err
			}

			scorer, err := a.open(cmd.Context(), args[0], iforest.WithMetrics(m))
			if err != nil {
				return err
			}

			addr := a.cfg.Server.Addr
			if config.addr != "" {
				addr = config.addr
			}
			srv := server.New(scorer, server.WithLogger(a.logger.Named("http")), server.WithGatherer(reg))
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVarP(&(config.addr), "addr", "a", "", "address to listen on (overrides the configured one)")
	return cmd
}
