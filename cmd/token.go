package cmd

import (
	"github.com/spf13/cobra"

	"github.com/crucible-eval/crucible/internal/auth"
	"github.com/crucible-eval/crucible/internal/config"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the operator token",
	}
	cmd.AddCommand(newTokenSetCmd())
	return cmd
}

func newTokenSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <token>",
		Short: "Store the operator token under the shell root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.ShellRoot(cfgFile)
			if err != nil {
				return err
			}
			if err := auth.SaveToken(root, args[0]); err != nil {
				return err
			}
			logger.WithField("root", root).Info("token saved")
			return nil
		},
	}
}
