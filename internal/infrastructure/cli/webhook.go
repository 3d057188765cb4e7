package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/events"
)

func newWebhookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Inspect outgoing task event webhooks (configured under notify.webhooks)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List enabled webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if services.Notifier == nil {
				fmt.Fprintln(w, "No webhooks configured.")
				return nil
			}
			rows := make([]table.Row, 0, len(services.Notifier.Endpoints()))
			for _, ep := range services.Notifier.Endpoints() {
				filter := "all"
				if len(ep.Events) > 0 {
					filter = strings.Join(ep.Events, ",")
				}
				signed := "no"
				if ep.Secret != "" {
					signed = "yes"
				}
				rows = append(rows, table.Row{ep.Name, ep.URL, filter, signed})
			}
			fmt.Fprintln(w, staticTable([]table.Column{
				{Title: "Name", Width: 16},
				{Title: "URL", Width: 40},
				{Title: "Events", Width: 24},
				{Title: "Signed", Width: 6},
			}, rows))
			return nil
		},
	}

	test := &cobra.Command{
		Use:   "test",
		Short: "Send a test event to every enabled webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			if services.Notifier == nil {
				return NewCLIError("no webhooks configured", "Add entries under notify.webhooks in config.yaml", nil)
			}
			e := events.New("webhook.test", "", actor(), time.Now().UTC(), map[string]any{"message": "test delivery"})
			n := services.Notifier.Notify(cmd.Context(), e)
			fmt.Fprintf(cmd.OutOrStdout(), "Delivered to %d of %d webhooks.\n", n, len(services.Notifier.Endpoints()))
			return nil
		},
	}

	var clearAll bool
	dead := &cobra.Command{
		Use:   "dead-letters",
		Short: "Show deliveries that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			store := services.DeadLetters
			entries, err := store.ReadAll()
			if err != nil {
				return NewCLIError("cannot read dead letters", "", err)
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No dead letters.")
			}
			for _, dl := range entries {
				fmt.Fprintf(w, "%s  %-16s %-24s %d attempts: %s\n",
					dl.Timestamp.Format(time.RFC3339), dl.WebhookName, dl.EventType, dl.Attempts, dl.Error)
			}
			if clearAll {
				if err := store.Clear(); err != nil {
					return NewCLIError("cannot clear dead letters", "", err)
				}
				fmt.Fprintf(w, "Cleared %s\n", store.Path())
			}
			return nil
		},
	}
	dead.Flags().BoolVar(&clearAll, "clear", false, "Remove the entries after printing")

	cmd.AddCommand(list, test, dead)
	return cmd
}
