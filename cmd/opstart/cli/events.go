package cli

import (
	"context"
	"fmt"

	"github.com/frobware/go-opstart/catalog"
	"github.com/frobware/go-opstart/config"
)

// EventsCmd lists the events of the detected CPU.
type EventsCmd struct {
	OutputFlags
	Counter *int `short:"c" help:"Only list events allowed on this counter."`
}

// Run executes the events command.
func (c *EventsCmd) Run(cli *CLI, ctx context.Context) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cat, err := catalogFor(cli, cfg)
	if err != nil {
		return err
	}

	events := cat.Events()
	if c.Counter != nil {
		if *c.Counter < 0 || *c.Counter >= cat.Counters() {
			return fmt.Errorf("counter %d out of range: %s has %d counters", *c.Counter, cat.CPU(), cat.Counters())
		}
		events = cat.ForCounter(*c.Counter)
	}

	output, err := format(events, &c.OutputFlags, func() string {
		return formatEventsTable(events)
	})
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

// catalogFor builds the catalog without touching stored settings.
func catalogFor(cli *CLI, cfg config.Config) (*catalog.Catalog, error) {
	t, err := cli.cpuType(cfg)
	if err != nil {
		return nil, err
	}
	return catalog.Build(t)
}
