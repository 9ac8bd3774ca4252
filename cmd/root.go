package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "repx",
		Short:         "repx: run Rep4Rep comment tasks across many Steam accounts",
		Long:          "repx fetches comment tasks from Rep4Rep for each configured Steam account, posts them, reports completion and paces itself with per-account daily limits and cooldowns.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newAccountCmd(app),
		newAuthCmd(app),
		newRunCmd(app),
		newStatusCmd(app),
	)

	return rootCmd
}
