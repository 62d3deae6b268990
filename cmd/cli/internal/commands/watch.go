package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/loadboard/internal/client"
	"github.com/wolfeidau/loadboard/internal/models"
)

// WatchCmd polls a load's history and prints new events until the load
// reaches a terminal status.
type WatchCmd struct {
	ClientFlags `embed:""`
	OrgID       string        `help:"Organization ID (defaults to the credential's org)"`
	LoadID      string        `arg:"" help:"Load ID to watch"`
	Interval    time.Duration `help:"Polling interval" default:"5s"`
	For         time.Duration `help:"Give up after this long" default:"1h"`
}

func (w *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	api, orgID, err := w.ClientFlags.orgClient(w.OrgID)
	if err != nil {
		return err
	}
	loadID, err := uuid.Parse(w.LoadID)
	if err != nil {
		return fmt.Errorf("invalid load id: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.For)
	defer cancel()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := globals.out()
	fmt.Fprintf(out, "Watching load %s on server %s\n", loadID, w.Server)
	fmt.Fprintln(out, strings.Repeat("=", 50))

	if err := watchLoad(ctx, out, api, orgID, loadID, w.Interval); err != nil {
		return fmt.Errorf("failed to watch load: %w", err)
	}

	fmt.Fprintln(out, "Watch finished")
	return nil
}

func watchLoad(ctx context.Context, out io.Writer, api *client.Client, orgID, loadID uuid.UUID, interval time.Duration) error {
	seen := map[uuid.UUID]bool{}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		events, err := api.LoadEvents(ctx, orgID, loadID)
		if err != nil {
			return err
		}
		sort.Slice(events, func(i, j int) bool { return events[i].ID.String() < events[j].ID.String() })

		for _, e := range events {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			printEvent(out, e)
		}

		load, err := api.GetLoad(ctx, orgID, loadID)
		if err != nil {
			return err
		}
		if load.Status.IsTerminal() {
			fmt.Fprintf(out, "Load finished: %s\n", load.Status)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printEvent(w io.Writer, e *models.LoadEvent) {
	var meta []string
	for k, v := range e.Meta {
		meta = append(meta, k+"="+v)
	}
	sort.Strings(meta)

	line := fmt.Sprintf("[%s] %-16s by %s", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Type, e.ActorID)
	if len(meta) > 0 {
		line += " (" + strings.Join(meta, ", ") + ")"
	}
	fmt.Fprintln(w, line)
}
