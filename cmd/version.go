package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at release build time:
// -ldflags "-X wenku8-archiver/cmd.Version=v1.2.3"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the archiver version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("wenku8-archiver", Version)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
