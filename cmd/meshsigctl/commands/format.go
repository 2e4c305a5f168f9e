package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatSession renders a session probe result in the requested format.
func formatSession(s sessionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(s)
	case formatTable:
		return formatSessionTable(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatLink renders a link in the requested format.
func formatLink(l linkView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(l)
	case formatTable:
		return formatLinkTable(l), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatNotifications renders a slice of notifications in the requested format.
func formatNotifications(ns []notificationView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(ns)
	case formatTable:
		return formatNotificationsTable(ns), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatJSONValue(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

func formatSessionTable(s sessionView) string {
	if !s.Exists {
		return "session does not exist\n"
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Exists:\t%t\n", s.Exists)
	fmt.Fprintf(w, "Has Host:\t%t\n", s.HasHost)
	fmt.Fprintf(w, "Client Count:\t%d\n", s.ClientCount)
	_ = w.Flush()
	return buf.String()
}

func formatLinkTable(l linkView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", l.ID)
	fmt.Fprintf(w, "Session:\t%s\n", l.SessionID)
	fmt.Fprintf(w, "Tier:\t%s\n", l.Tier)
	if l.WalletAddress != "" {
		fmt.Fprintf(w, "Wallet:\t%s\n", l.WalletAddress)
	}
	fmt.Fprintf(w, "Created:\t%s\n", l.CreatedAt.Format(time.RFC3339))
	if l.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:\t%s\n", l.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(w, "Expires:\tnever\n")
	}
	fmt.Fprintf(w, "Activity Count:\t%d\n", l.ActivityCount)
	fmt.Fprintf(w, "Regeneration Count:\t%d\n", l.RegenerationCount)
	_ = w.Flush()
	return buf.String()
}

func formatNotificationsTable(ns []notificationView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tLINK\tREASON")
	for _, n := range ns {
		ts := time.Unix(n.Timestamp, 0).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ts, n.Kind, n.LinkID, n.Reason)
	}
	_ = w.Flush()
	return buf.String()
}
