package cmd

import (
	"github.com/spf13/cobra"
)

func newFeatureIntoCrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "feature-into-crate",
		Short: "Only insert the feature documentation into the crate docs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInsert(cmd, modeFeatures)
		},
	}
}

func newCrateIntoReadmeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "crate-into-readme",
		Short: "Only insert the crate documentation into the readme",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInsert(cmd, modeCrate)
		},
	}
}
