package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fieldmic/internal/bootstrap"
	"fieldmic/internal/usecase"
)

const saySlot = "say"

var sayCmd = &cobra.Command{
	Use:   "say TEXT...",
	Short: "Synthesize text and play it",
	Long:  `Send text to the speech service, applying the pronunciation rules, and play the result.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := buildServices()
		if err != nil {
			return err
		}
		defer services.Close()

		text := strings.Join(args, " ")
		return playAndWait(cmd.Context(), services.Events, saySlot, func(ctx context.Context) error {
			return services.Playback.Play(ctx, usecase.PlayRequest{Slot: saySlot, Text: text})
		})
	},
}

// playAndWait starts playback in slot and blocks until it finishes, fails or ctx ends.
func playAndWait(ctx context.Context, events *bootstrap.FanOut, slot string, play func(context.Context) error) error {
	watcher := newPlaybackWatcher(slot)
	remove := events.Add(watcher)
	defer remove()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Wait(gctx)
	})
	g.Go(func() error {
		return play(gctx)
	})
	return g.Wait()
}
