package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tombstone/internal/client"
	"github.com/alfredjeanlab/tombstone/internal/events"
	"github.com/alfredjeanlab/tombstone/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream soft delete, restore and purge events",
	GroupID: "trash",
	Long: `Watch prints one line per committed operation. It reads from NATS when
a NATS URL is known (--nats, TOMBSTONE_NATS_URL or the active remote) and
from the server's SSE stream otherwise.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("TOMBSTONE_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeRemote().NATSURL
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if natsURL != "" {
			return watchNATS(ctx, cmd.OutOrStdout(), natsURL, topic)
		}
		return watchSSE(ctx, cmd.OutOrStdout(), topic)
	},
}

// watchNATS prints events from NATS. The bus carries every tenant, so
// events are filtered by --tenant here.
func watchNATS(ctx context.Context, w io.Writer, natsURL, topic string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	return printEvents(ctx, w, ch, tenantID)
}

// watchSSE prints events from the server's SSE stream, which is already
// scoped to the caller's tenant.
func watchSSE(ctx context.Context, w io.Writer, topic string) error {
	hc, ok := tombClient.(*client.HTTPClient)
	if !ok {
		hc = client.NewHTTPClient(httpURL, client.Options{Token: authToken, TenantID: tenantID})
	}
	ch, err := hc.StreamEvents(ctx, []string{topic})
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	return printEvents(ctx, w, ch, "")
}

// printEvents writes one line per message until ctx ends or ch closes.
// A non-empty tenant drops events of other tenants.
func printEvents(ctx context.Context, w io.Writer, ch <-chan events.Message, tenant string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := msg.Decode()
			if err != nil {
				fmt.Fprintln(os.Stderr, ui.RenderWarn("skipping event: ")+err.Error())
				continue
			}
			if tenant != "" && ev.TenantID != tenant {
				continue
			}
			if jsonOutput {
				if err := printJSON(w, map[string]any{"topic": msg.Topic, "event": ev}); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(w, formatEvent(msg.Topic, ev))
		}
	}
}

func formatEvent(topic string, ev events.RecordsChanged) string {
	action := strings.TrimPrefix(topic, "tombstone.record.")
	keys := make([]string, len(ev.Keys))
	for i, k := range ev.Keys {
		keys[i] = k.String()
	}
	line := fmt.Sprintf("%s %s %s (%d affected)",
		ui.RenderMuted(ev.At.Format(timeLayout)),
		ui.RenderAccent(action),
		strings.Join(keys, " "),
		len(ev.Affected),
	)
	if ev.TenantID != "" {
		line += " " + ui.RenderMuted("tenant="+ev.TenantID)
	}
	return line
}

func init() {
	watchCmd.Flags().String("topic", events.TopicAll, "topic pattern to watch (NATS wildcards)")
	watchCmd.Flags().String("nats", "", "NATS URL to read events from")
}
