package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is reported to the server with every acquisition and report
// call.
const Version = "0.5.0"

var cfgFile string

func NewRootCmd() *cobra.Command {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	root := &cobra.Command{
		Use:     "crucible",
		Short:   "Polls the challenge server for submissions and evaluates them in containers",
		Version: Version,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "crucible.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newTokenCmd())
	return root
}
