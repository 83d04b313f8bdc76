package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"wenku8-archiver/config"
	"wenku8-archiver/pipeline"
	"wenku8-archiver/session"
)

var rootArgs struct {
	configPath string
	outputPath string
	verbose    bool
}

var RootCmd = &cobra.Command{
	Use:           "wenku8-archiver",
	Short:         "Archive wenku8 novels as EPUB files",
	Long:          "Reads the configured title list, downloads chapters and illustrations over a logged-in session, and assembles one EPUB per novel.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBatch,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&rootArgs.configPath, "config", "c", "config.toml", "config file path")
	RootCmd.PersistentFlags().BoolVarP(&rootArgs.verbose, "verbose", "v", false, "debug logging")
	RootCmd.Flags().StringVarP(&rootArgs.outputPath, "output-path", "o", "", "override the configured output directory")
}

func setupLogging() {
	level := slog.LevelInfo
	if rootArgs.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func runBatch(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := config.Load(rootArgs.configPath)
	if err != nil {
		return err
	}
	if rootArgs.outputPath != "" {
		cfg.OutputDir = rootArgs.outputPath
	}

	summary, err := pipeline.Run(cmd.Context(), cfg, session.NewBrowser(cfg.BaseURL))
	if summary != nil {
		for _, result := range summary.Novels {
			fmt.Println(result.Line())
		}
	}
	if err != nil {
		return err
	}
	if summary.Failed() {
		return fmt.Errorf("some novels failed, see summary above")
	}
	return nil
}
