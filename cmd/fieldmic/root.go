package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fieldmic/internal/bootstrap"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "fieldmic",
	Short: "Record spoken field reports and review their analysis",
	Long: `FieldMic records a spoken report from the microphone, submits it to the
analysis service and plays back the original recording or a synthesized summary.

These commands cover terminal and headless use; the desktop app is built from
the repository root with Wails.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI until completion or interrupt.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/fieldmic/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func buildServices() (*bootstrap.Services, error) {
	opts := bootstrap.Options{ConfigPath: cfgFile}
	if verbose {
		opts.LogLevel = "debug"
	}
	services, err := bootstrap.Build(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return services, nil
}
