package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/anomalyscore/pkg/detectors/iforest"
	"github.com/hed1ad/anomalyscore/pkg/resource"
)

func cacheCmd(rootConfig *rootCmdConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the scorer cache",
	}
	cmd.AddCommand(cacheWarmCmd(rootConfig))
	return cmd
}

func cacheWarmCmd(rootConfig *rootCmdConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "warm <detector>...",
		Short: "Rebuild detectors and store them in the configured cache",
		Long:  `Rebuild every given detector from its resource, replacing any cached copy, so later runs load it from the cache`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.store()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			for _, source := range args {
				doc, err := resource.Load(ctx, a.fetcher, source)
				if err != nil {
					return err
				}
				scorer, err := iforest.New(doc, iforest.WithLogger(a.logger.Named("iforest")))
				if err != nil {
					return fmt.Errorf("building %s: %w", source, err)
				}
				if scorer.ID() == "" {
					return fmt.Errorf("%s has no resource id to cache it under", source)
				}
				blob, err := scorer.Save()
				if err != nil {
					return err
				}
				if err := store.Put(ctx, scorer.ID(), blob); err != nil {
					return err
				}
				a.logger.Info("cached scorer", zap.String("id", scorer.ID()), zap.Int("bytes", len(blob)))
				fmt.Fprintln(cmd.OutOrStdout(), scorer.ID())
			}
			return nil
		},
	}
}
