package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"fieldmic/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the recorder over HTTP and websocket",
	Long: `Start the HTTP bridge so a browser or another device can drive recording and
playback. Session events are streamed on /ws.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := buildServices()
		if err != nil {
			return err
		}
		defer services.Close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = services.Config.Server.Addr
		}
		origins, _ := cmd.Flags().GetStringSlice("origin")

		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}

		logger := services.Logger.With("component", "server")
		hub := server.NewHub(logger)
		defer services.Events.Add(hub)()

		srv := server.New(server.Config{Addr: addr, AllowedOrigins: origins},
			services.Recorder, services.Reports, services.Frames, hub, logger)

		if err := srv.Run(cmd.Context()); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringSlice("origin", nil, "allowed browser origin; repeat for more (default allows all)")
}
