package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/loadboard/internal/client"
	"github.com/wolfeidau/loadboard/internal/loads"
	"github.com/wolfeidau/loadboard/internal/models"
)

// LoadsCmd works with an organization's loads.
type LoadsCmd struct {
	Create     LoadsCreateCmd     `cmd:"" help:"Create a load from a YAML or JSON file"`
	List       LoadsListCmd       `cmd:"" help:"List loads"`
	Show       LoadsShowCmd       `cmd:"" help:"Show a load"`
	Assign     LoadsAssignCmd     `cmd:"" help:"Assign a load to a driver"`
	Transition LoadsTransitionCmd `cmd:"" help:"Apply a lifecycle action (start, deliver, complete, cancel)"`
	Events     LoadsEventsCmd     `cmd:"" help:"Show a load's history"`
	Watch      WatchCmd           `cmd:"" help:"Follow a load's history until it finishes"`
}

// LoadsCreateCmd creates a load.
type LoadsCreateCmd struct {
	ClientFlags `embed:""`
	OrgID       string `help:"Organization ID (defaults to the credential's org)"`
	File        string `arg:"" help:"YAML/JSON file describing the load" type:"existingfile"`
}

func (c *LoadsCreateCmd) Run(ctx context.Context, globals *Globals) error {
	in, err := readLoadFile(c.File)
	if err != nil {
		return err
	}

	api, orgID, err := c.ClientFlags.orgClient(c.OrgID)
	if err != nil {
		return err
	}

	load, err := api.CreateLoad(ctx, orgID, in)
	if err != nil {
		return fmt.Errorf("failed to create load: %w", err)
	}

	fmt.Fprintf(globals.out(), "Created load %s (%s)\n", load.ID, load.Status)
	return nil
}

// readLoadFile decodes a load description. JSON is valid YAML so one
// decoder serves both.
func readLoadFile(path string) (loads.CreateInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return loads.CreateInput{}, fmt.Errorf("failed to read load file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return loads.CreateInput{}, fmt.Errorf("failed to parse load file: %w", err)
	}

	// round trip through JSON so the API's field names apply
	js, err := json.Marshal(raw)
	if err != nil {
		return loads.CreateInput{}, fmt.Errorf("failed to parse load file: %w", err)
	}

	dec := json.NewDecoder(strings.NewReader(string(js)))
	dec.DisallowUnknownFields()

	var in loads.CreateInput
	if err := dec.Decode(&in); err != nil {
		return loads.CreateInput{}, fmt.Errorf("invalid load file: %w", err)
	}
	return in, nil
}

// LoadsListCmd lists loads.
type LoadsListCmd struct {
	ClientFlags `embed:""`
	OrgID       string `help:"Organization ID (defaults to the credential's org)"`
	Driver      string `help:"Only loads assigned to this driver ID"`
	Status      string `help:"Status filter (DRAFT, ASSIGNED, IN_TRANSIT, DELIVERED, COMPLETED, CANCELLED)"`
	From        string `help:"Only loads changed on or after this date (YYYY-MM-DD)"`
	To          string `help:"Only loads changed on or before this date (YYYY-MM-DD)"`
	Limit       int    `help:"Maximum loads to return" default:"50"`
	Watch       bool   `help:"Watch for changes (refresh every 5 seconds)" default:"false"`
}

func (c *LoadsListCmd) Run(ctx context.Context, globals *Globals) error {
	api, orgID, err := c.ClientFlags.orgClient(c.OrgID)
	if err != nil {
		return err
	}

	f, err := c.filter()
	if err != nil {
		return err
	}

	w := globals.out()
	if !c.Watch {
		return c.list(ctx, w, api, orgID, f)
	}

	fmt.Fprintln(w, "Watching loads (press Ctrl+C to stop)...")
	fmt.Fprintln(w)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	if err := c.list(ctx, w, api, orgID, f); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprint(w, "\033[2J\033[H") // clear screen, cursor to top
			fmt.Fprintf(w, "Loads (updated at %s)\n\n", time.Now().Format("15:04:05"))

			if err := c.list(ctx, w, api, orgID, f); err != nil {
				fmt.Fprintf(w, "Error updating load list: %v\n", err)
			}
		}
	}
}

func (c *LoadsListCmd) filter() (loads.ListFilter, error) {
	f := loads.ListFilter{Limit: c.Limit}

	if c.Status != "" {
		st, ok := models.ParseLoadStatus(strings.ToUpper(c.Status))
		if !ok {
			return f, fmt.Errorf("unknown status %q", c.Status)
		}
		f.Status = st
	}
	if c.From != "" {
		from, err := time.Parse(time.DateOnly, c.From)
		if err != nil {
			return f, fmt.Errorf("invalid --from: %w", err)
		}
		f.From = from
	}
	if c.To != "" {
		to, err := time.Parse(time.DateOnly, c.To)
		if err != nil {
			return f, fmt.Errorf("invalid --to: %w", err)
		}
		f.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	return f, nil
}

func (c *LoadsListCmd) list(ctx context.Context, w io.Writer, api *client.Client, orgID uuid.UUID, f loads.ListFilter) error {
	var (
		out []*models.Load
		err error
	)
	if c.Driver != "" {
		driverID, parseErr := uuid.Parse(c.Driver)
		if parseErr != nil {
			return fmt.Errorf("invalid --driver: %w", parseErr)
		}
		out, err = api.ListDriverLoads(ctx, orgID, driverID, f)
	} else {
		out, err = api.ListLoads(ctx, orgID, f)
	}
	if err != nil {
		return fmt.Errorf("failed to list loads: %w", err)
	}

	printLoads(w, out)
	return nil
}

func printLoads(dst io.Writer, out []*models.Load) {
	if len(out) == 0 {
		fmt.Fprintln(dst, "No loads found.")
		return
	}

	w := tabwriter.NewWriter(dst, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOAD ID\tREFERENCE\tSTATUS\tDRIVER\tCITY\tCHANGED")
	for _, l := range out {
		driver := "-"
		if l.AssignedDriverID != nil {
			driver = l.AssignedDriverID.String()
		}
		ref := l.Reference
		if len(ref) > 20 {
			ref = ref[:17] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, ref, l.Status, driver, l.ServiceAddress.City, l.StatusChangedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	fmt.Fprintf(dst, "\nTotal loads: %d\n", len(out))
}

// LoadsShowCmd prints a load as JSON.
type LoadsShowCmd struct {
	ClientFlags `embed:""`
	OrgID       string `help:"Organization ID (defaults to the credential's org)"`
	LoadID      string `arg:"" help:"Load ID"`
}

func (c *LoadsShowCmd) Run(ctx context.Context, globals *Globals) error {
	api, orgID, err := c.ClientFlags.orgClient(c.OrgID)
	if err != nil {
		return err
	}
	loadID, err := uuid.Parse(c.LoadID)
	if err != nil {
		return fmt.Errorf("invalid load id: %w", err)
	}

	load, err := api.GetLoad(ctx, orgID, loadID)
	if err != nil {
		return fmt.Errorf("failed to get load: %w", err)
	}

	enc := json.NewEncoder(globals.out())
	enc.SetIndent("", "  ")
	return enc.Encode(load)
}

// LoadsAssignCmd assigns a load to a driver.
type LoadsAssignCmd struct {
	ClientFlags `embed:""`
	OrgID       string `help:"Organization ID (defaults to the credential's org)"`
	LoadID      string `arg:"" help:"Load ID"`
	Driver      string `arg:"" help:"Driver user ID or email"`
}

func (c *LoadsAssignCmd) Run(ctx context.Context, globals *Globals) error {
	api, orgID, err := c.ClientFlags.orgClient(c.OrgID)
	if err != nil {
		return err
	}
	loadID, err := uuid.Parse(c.LoadID)
	if err != nil {
		return fmt.Errorf("invalid load id: %w", err)
	}

	driverID, err := uuid.Parse(c.Driver)
	if err != nil {
		user, lookupErr := api.LookupUser(ctx, c.Driver)
		if lookupErr != nil {
			return fmt.Errorf("failed to find driver %q: %w", c.Driver, lookupErr)
		}
		driverID = user.ID
	}

	load, err := api.AssignLoad(ctx, orgID, loadID, driverID)
	if err != nil {
		return fmt.Errorf("failed to assign load: %w", err)
	}

	fmt.Fprintf(globals.out(), "Load %s assigned to %s (%s)\n", load.ID, driverID, load.Status)
	return nil
}

// LoadsTransitionCmd applies a lifecycle action.
type LoadsTransitionCmd struct {
	ClientFlags `embed:""`
	OrgID       string `help:"Organization ID (defaults to the credential's org)"`
	LoadID      string `arg:"" help:"Load ID"`
	Action      string `arg:"" help:"Lifecycle action" enum:"start,deliver,complete,cancel"`
	Reason      string `help:"Cancellation reason"`
}

func (c *LoadsTransitionCmd) Run(ctx context.Context, globals *Globals) error {
	api, orgID, err := c.ClientFlags.orgClient(c.OrgID)
	if err != nil {
		return err
	}
	loadID, err := uuid.Parse(c.LoadID)
	if err != nil {
		return fmt.Errorf("invalid load id: %w", err)
	}

	load, err := api.TransitionLoad(ctx, orgID, loadID, loads.Action(c.Action), c.Reason)
	if err != nil {
		return fmt.Errorf("failed to %s load: %w", c.Action, err)
	}

	fmt.Fprintf(globals.out(), "Load %s is now %s\n", load.ID, load.Status)
	return nil
}

// LoadsEventsCmd prints a load's history.
type LoadsEventsCmd struct {
	ClientFlags `embed:""`
	OrgID       string `help:"Organization ID (defaults to the credential's org)"`
	LoadID      string `arg:"" help:"Load ID"`
}

func (c *LoadsEventsCmd) Run(ctx context.Context, globals *Globals) error {
	api, orgID, err := c.ClientFlags.orgClient(c.OrgID)
	if err != nil {
		return err
	}
	loadID, err := uuid.Parse(c.LoadID)
	if err != nil {
		return fmt.Errorf("invalid load id: %w", err)
	}

	events, err := api.LoadEvents(ctx, orgID, loadID)
	if err != nil {
		return fmt.Errorf("failed to get events: %w", err)
	}

	for _, e := range events {
		printEvent(globals.out(), e)
	}
	return nil
}
