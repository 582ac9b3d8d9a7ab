package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/anomalyscore/pkg/detectors"
	"github.com/hed1ad/anomalyscore/pkg/detectors/iforest"
	anomalyio "github.com/hed1ad/anomalyscore/pkg/io"
	"github.com/hed1ad/anomalyscore/pkg/io/csv"
	"github.com/hed1ad/anomalyscore/pkg/io/jsonl"
	"github.com/hed1ad/anomalyscore/pkg/io/pcap"
)

// Input formats.
const (
	formatCSV  = "csv"
	formatJSON = "json"
	formatPCAP = "pcap"
)

type scoreCmdConfig struct {
	input         string
	format        string
	iface         string
	bpf           string
	threshold     float64
	anomaliesOnly bool
}

func scoreCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &scoreCmdConfig{}
	cmd := &cobra.Command{
		Use:   "score <detector>",
		Short: "Score records against a detector",
		Long: `Rebuild the detector given as a resource id, a JSON file or an inline JSON document and score every record
read from the input, writing one JSON result per line to stdout`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Validate(); err != nil {
				return err
			}
			a, err := newApp(rootConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			var opts []iforest.Option
			if cmd.Flags().Changed("threshold") {
				opts = append(opts, iforest.WithThreshold(config.threshold))
			}
			scorer, err := a.open(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}

			reader, err := config.openReader(cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer reader.Close()

			n, err := score(cmd.Context(), scorer, reader, jsonl.NewWriter(cmd.OutOrStdout()), config.anomaliesOnly)
			a.logger.Info("scored records", zap.String("detector", scorer.ID()), zap.Int("records", n))
			return err
		},
	}
	cmd.Flags().StringVarP(&(config.input), "input", "i", "-", "path to the records to score, - for stdin")
	cmd.Flags().StringVarP(&(config.format), "format", "f", "", "input format: csv, json or pcap (inferred from the input extension when unset)")
	cmd.Flags().StringVar(&(config.iface), "interface", "", "capture packets live from this network interface instead of reading input")
	cmd.Flags().StringVar(&(config.bpf), "bpf", "", "BPF filter applied to live captures")
	cmd.Flags().Float64VarP(&(config.threshold), "threshold", "t", 0, "score at or above which a record is flagged as anomalous")
	cmd.Flags().BoolVar(&(config.anomaliesOnly), "anomalies-only", false, "only output records flagged as anomalous")
	return cmd
}

func (scc *scoreCmdConfig) Validate() error {
	if scc.threshold < 0 || scc.threshold > 1 {
		return fmt.Errorf("threshold must be within [0, 1]")
	}
	if scc.iface != "" {
		scc.format = formatPCAP
		return nil
	}
	if scc.bpf != "" {
		return fmt.Errorf("bpf flag requires the interface flag")
	}
	if scc.format == "" {
		scc.format = inferFormat(scc.input)
	}
	switch scc.format {
	case formatCSV, formatJSON, formatPCAP:
	default:
		return fmt.Errorf("unknown input format %q", scc.format)
	}
	if scc.format == formatPCAP && scc.input == "-" {
		return fmt.Errorf("pcap input cannot be read from stdin")
	}
	return nil
}

func inferFormat(input string) string {
	switch strings.ToLower(filepath.Ext(input)) {
	case ".csv", ".tsv":
		return formatCSV
	case ".pcap", ".pcapng", ".cap":
		return formatPCAP
	default:
		return formatJSON
	}
}

// openReader opens the configured input. stdin is read when input is "-".
func (scc *scoreCmdConfig) openReader(stdin io.Reader) (anomalyio.Reader, error) {
	switch scc.format {
	case formatCSV:
		var opts []csv.Option
		if strings.EqualFold(filepath.Ext(scc.input), ".tsv") {
			opts = append(opts, csv.WithComma('\t'))
		}
		if scc.input == "-" {
			return csv.FromReader(stdin, opts...)
		}
		return csv.NewReader(scc.input, opts...)
	case formatPCAP:
		if scc.iface != "" {
			return pcap.NewLiveReader(scc.iface, 65535, false, time.Second, scc.bpf)
		}
		return pcap.NewFileReader(scc.input)
	default:
		if scc.input == "-" {
			return jsonl.FromReader(stdin), nil
		}
		return jsonl.NewReader(scc.input)
	}
}

// score streams every record of reader through scorer into w and returns the
// number of records scored.
func score(ctx context.Context, scorer detectors.StreamScorer, reader anomalyio.Reader, w anomalyio.Writer, anomaliesOnly bool) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records, err := reader.Stream(ctx)
	if err != nil {
		return 0, err
	}

	results := make(chan detectors.Score, 100)
	errCh := make(chan error, 1)
	go func() {
		defer close(results)
		errCh <- scorer.ScoreStream(ctx, records, results)
	}()

	var n int
	var writeErr error
	for s := range results {
		n++
		if writeErr != nil || (anomaliesOnly && !s.IsAnomaly) {
			continue
		}
		if err := w.Write(anomalyio.NewResult(s, time.Now().UnixMilli())); err != nil {
			writeErr = fmt.Errorf("writing result: %w", err)
			cancel()
		}
	}

	if writeErr != nil {
		return n, writeErr
	}
	return n, <-errCh
}
