package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// linkView mirrors internal/api's linkResponse JSON shape.
type linkView struct {
	ID                string     `json:"id"`
	SessionID         string     `json:"sessionId"`
	Tier              string     `json:"tier"`
	WalletAddress     string     `json:"walletAddress,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	ActivityCount     int        `json:"activityCount"`
	RegenerationCount int        `json:"regenerationCount"`
}

// notificationView mirrors internal/links.Notification's JSON shape.
type notificationView struct {
	Kind      string `json:"kind"`
	LinkID    string `json:"linkId"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func linkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage persistent links",
	}

	cmd.AddCommand(linkCreateCmd())
	cmd.AddCommand(linkShowCmd())
	cmd.AddCommand(linkRegenerateCmd())
	cmd.AddCommand(linkKeepAliveCmd())
	cmd.AddCommand(linkNotificationsCmd())

	return cmd
}

func linkCreateCmd() *cobra.Command {
	var (
		linkID    string
		sessionID string
		wallet    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a persistent link for a session (regenerates it if the link id exists)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			req := map[string]string{"sessionId": sessionID}
			if linkID != "" {
				req["linkId"] = linkID
			}
			if wallet != "" {
				req["walletAddress"] = wallet
			}

			var view linkView
			if err := client.post(context.Background(), "/api/links", req, &view); err != nil {
				return fmt.Errorf("create link: %w", err)
			}

			out, err := formatLink(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format link: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&sessionID, "session", "", "session id the link attaches to (required)")
	flags.StringVar(&linkID, "link-id", "", "explicit link id (generated if omitted)")
	flags.StringVar(&wallet, "wallet", "", "wallet address to assign tier against")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func linkShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <link-id>",
		Short: "Show a persistent link",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var view linkView
			if err := client.get(context.Background(), "/api/links/"+args[0], &view); err != nil {
				return fmt.Errorf("get link: %w", err)
			}

			out, err := formatLink(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format link: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}
}

func linkRegenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <link-id>",
		Short: "Force-regenerate a persistent link",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var view linkView
			if err := client.post(context.Background(), "/api/links/"+args[0]+"/regenerate", nil, &view); err != nil {
				return fmt.Errorf("regenerate link: %w", err)
			}

			out, err := formatLink(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format link: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}
}

func linkKeepAliveCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "keepalive <link-id>",
		Short: "Record activity on a link, extending its expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			req := map[string]string{}
			if reason != "" {
				req["reason"] = reason
			}

			var view linkView
			if err := client.post(context.Background(), "/api/links/"+args[0]+"/keepalive", req, &view); err != nil {
				return fmt.Errorf("keep link alive: %w", err)
			}

			out, err := formatLink(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format link: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the keep-alive notification")

	return cmd
}

func linkNotificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notifications <link-id>",
		Short: "List lifecycle notifications recorded for a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var views []notificationView
			if err := client.get(context.Background(), "/api/links/"+args[0]+"/notifications", &views); err != nil {
				return fmt.Errorf("list notifications: %w", err)
			}

			out, err := formatNotifications(views, outputFormat)
			if err != nil {
				return fmt.Errorf("format notifications: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}
}
