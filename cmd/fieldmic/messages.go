package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fieldmic/internal/domain"
)

var messagesCmd = &cobra.Command{
	Use:   "messages [QUERY]",
	Short: "List logged reports",
	Long:  `List reports stored by the analysis service. QUERY filters on the summary and original text.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := buildServices()
		if err != nil {
			return err
		}
		defer services.Close()

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		reports, err := services.Reports.Messages(cmd.Context(), query)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "no messages")
			return nil
		}
		printMessages(os.Stdout, reports)
		return nil
	},
}

var messagesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a logged report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := buildServices()
		if err != nil {
			return err
		}
		defer services.Close()

		if err := services.Reports.DeleteMessage(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deleted %s\n", args[0])
		return nil
	},
}

var messagesPlayCmd = &cobra.Command{
	Use:   "play ID",
	Short: "Speak the summary of a logged report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := buildServices()
		if err != nil {
			return err
		}
		defer services.Close()

		id := args[0]
		return playAndWait(cmd.Context(), services.Events, domain.MessageSlot(id), func(ctx context.Context) error {
			return services.Reports.PlayMessage(ctx, id)
		})
	},
}

func init() {
	messagesCmd.AddCommand(messagesDeleteCmd)
	messagesCmd.AddCommand(messagesPlayCmd)
}
