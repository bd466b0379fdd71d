package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/frobware/go-opstart/poller"
)

// ArgsCmd prints the daemon arguments the current assignment would
// start with.
type ArgsCmd struct{}

// Run executes the args command.
func (c *ArgsCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	args, err := rt.Manager.Args()
	if err != nil {
		return err
	}
	return cli.PrintOutf("%s %s\n", rt.Config.Daemon.Start, strings.Join(args, " "))
}

// StartCmd validates the assignment and starts the daemon.
type StartCmd struct{}

// Run executes the start command.
func (c *StartCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	confirm := func() bool {
		return cli.confirm("Profiler already started: stop and restart it?")
	}
	if err := rt.Manager.Start(ctx, confirm); err != nil {
		return err
	}
	return cli.PrintOut("Profiler started.\n")
}

// StopCmd flushes and stops the daemon.
type StopCmd struct{}

// Run executes the stop command.
func (c *StopCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Manager.Stop(ctx); err != nil {
		return err
	}
	return cli.PrintOut("Profiler stopped.\n")
}

// FlushCmd asks the daemon to write out its samples.
type FlushCmd struct{}

// Run executes the flush command.
func (c *FlushCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.Manager.Flush(ctx)
}

// StatusCmd prints the daemon status, once or on every poll interval.
type StatusCmd struct {
	OutputFlags
	Watch       bool          `short:"w" help:"Keep polling until interrupted."`
	Interval    time.Duration `help:"Poll interval (default from config)."`
	MetricsAddr string        `name:"metrics-addr" help:"Serve Prometheus metrics on this address while watching."`
}

// Run executes the status command.
func (c *StatusCmd) Run(cli *CLI, ctx context.Context) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := cli.Logger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	interval := c.Interval
	if interval == 0 {
		if interval, err = cfg.PollInterval(); err != nil {
			return err
		}
	}

	opts := []poller.Option{poller.WithInterval(interval)}
	var metrics *poller.Metrics
	if c.MetricsAddr != "" {
		metrics = poller.NewMetrics()
		opts = append(opts, poller.WithMetrics(metrics))
	}
	p := poller.New(cli.statusSource(cfg, logger), logger, opts...)

	if !c.Watch {
		snap, err := p.Tick(ctx)
		if err != nil {
			return err
		}
		return c.print(cli, snap)
	}

	if metrics != nil {
		ln, err := net.Listen("tcp", c.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listen on %s: %w", c.MetricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Handler: mux}
		logger.Info("metrics HTTP server listening", "address", ln.Addr().String())
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics HTTP server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	var printErr error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	err = p.Run(ctx, func(snap poller.Snapshot) {
		if printErr = c.print(cli, snap); printErr != nil {
			cancel()
		}
	})
	if printErr != nil {
		return printErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *StatusCmd) print(cli *CLI, snap poller.Snapshot) error {
	output, err := format(snap, &c.OutputFlags, func() string {
		return snap.Text() + "\n"
	})
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}
