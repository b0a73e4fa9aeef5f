package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fieldmic/internal/domain"
)

var playSummary bool

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a report from the microphone and analyze it",
	Long: `Record from the configured input until Enter is pressed, then submit the
recording for analysis and print the resulting report. Ctrl-C discards the
recording.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		services, err := buildServices()
		if err != nil {
			return err
		}
		defer services.Close()
		services.Events.Add(newConsoleSink(os.Stderr))

		if _, err := services.Recorder.Start(ctx); err != nil {
			return fmt.Errorf("recording failed to start: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Recording... press Enter to stop, Ctrl-C to discard")

		if err := waitForEnter(ctx); err != nil {
			services.Recorder.Abort()
			return err
		}

		report, stopped, err := services.Reports.StopAndAnalyze(ctx)
		if err != nil {
			return err
		}
		if !stopped {
			return errors.New("recording ended before it could be stopped")
		}
		printReport(os.Stdout, report)

		if !playSummary {
			return nil
		}
		return playAndWait(ctx, services.Events, domain.SlotSummary, func(ctx context.Context) error {
			return services.Reports.PlaySlot(ctx, domain.SlotSummary)
		})
	},
}

func init() {
	recordCmd.Flags().BoolVar(&playSummary, "play-summary", false, "speak the summary once the report is ready")
}

func waitForEnter(ctx context.Context) error {
	lines := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(lines)
	}()

	select {
	case <-lines:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
