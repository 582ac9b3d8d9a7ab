package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type filterCmdConfig struct {
	exclude bool
}

func filterCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &filterCmdConfig{}
	cmd := &cobra.Command{
		Use:   "filter <detector>",
		Short: "Print a Flatline filter selecting the top anomalies",
		Long:  `Print the Flatline expression that selects the training rows listed as top anomalies, or every other row with --exclude`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			scorer, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), scorer.Filter(!config.exclude))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&(config.exclude), "exclude", "x", false, "select the rows that are not top anomalies")
	return cmd
}
