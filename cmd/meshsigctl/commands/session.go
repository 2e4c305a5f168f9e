package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect signaling sessions",
	}

	cmd.AddCommand(sessionShowCmd())

	return cmd
}

// sessionView mirrors internal/api's sessionResponse JSON shape.
type sessionView struct {
	Exists      bool `json:"exists"`
	HasHost     bool `json:"hasHost"`
	ClientCount int  `json:"clientCount"`
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show whether a session exists and its host/client counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var view sessionView
			if err := client.get(context.Background(), "/api/session/"+args[0], &view); err != nil {
				return fmt.Errorf("get session: %w", err)
			}

			out, err := formatSession(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format session: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}
}
