package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/spf13/afero"

	"github.com/frobware/go-opstart/config"
	"github.com/frobware/go-opstart/interpreter"
	"github.com/frobware/go-opstart/logging"
)

// CLI is the root command structure for opstart.
type CLI struct {
	ConfigFile  string `name:"config-file" help:"Config file path." default:"${default_config_path}"`
	Log         string `name:"log" help:"Log spec (e.g., 'info,manager=debug'). Overrides ${log_env}."`
	SettingsDir string `name:"settings-dir" help:"Directory holding the saved counter settings (default ~/.oprofile)."`
	Backend     string `name:"backend" help:"Settings backend: flatfile or sqlite."`
	CPU         string `name:"cpu" help:"Override the detected CPU type (ppro, pii, piii, athlon, hammer)."`
	Yes         bool   `name:"yes" short:"y" help:"Answer yes to every prompt."`

	Events  EventsCmd  `cmd:"" help:"List the events the CPU can count."`
	Show    ShowCmd    `cmd:"" help:"Show the counter assignments."`
	Assign  AssignCmd  `cmd:"" help:"Assign an event to a counter."`
	Enable  EnableCmd  `cmd:"" help:"Enable a counter."`
	Disable DisableCmd `cmd:"" help:"Disable a counter and clear its event."`
	Edit    EditCmd    `cmd:"" help:"Edit the settings of a counter's event."`
	Config  ConfigCmd  `cmd:"" help:"Show or change the daemon configuration."`
	Args    ArgsCmd    `cmd:"" help:"Print the daemon arguments without starting it."`
	Start   StartCmd   `cmd:"" help:"Start the profiler."`
	Stop    StopCmd    `cmd:"" help:"Flush and stop the profiler."`
	Flush   FlushCmd   `cmd:"" help:"Flush the profiler's sample buffers."`
	Status  StatusCmd  `cmd:"" help:"Show the profiler status."`

	// Out and Err receive command output; nil means os.Stdout and
	// os.Stderr.
	Out io.Writer `kong:"-"`
	Err io.Writer `kong:"-"`
	// FS is the filesystem for config, settings and daemon state; nil
	// means the OS filesystem.
	FS afero.Fs `kong:"-"`
	// Prompt asks a yes/no question; nil uses the terminal.
	Prompt func(question string) bool `kong:"-"`
	// Runner executes daemon commands; nil runs them with os/exec.
	Runner interpreter.Runner `kong:"-"`
	// StatusSource reports the daemon state; nil reads the daemon lock and
	// interrupt files.
	StatusSource interpreter.StatusSource `kong:"-"`
}

// KongOptions returns the Kong configuration options for the CLI.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("opstart"),
		kong.Description("Configure and drive the hardware performance-counter profiler."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"default_config_path": config.DefaultConfigPath,
			"log_env":             logging.EnvVar,
		},
	}
}

func (c *CLI) fs() afero.Fs {
	if c.FS == nil {
		c.FS = afero.NewOsFs()
	}
	return c.FS
}

// LoadConfig loads the config file and applies command line overrides.
func (c *CLI) LoadConfig() (config.Config, error) {
	cfg, err := config.Load(c.fs(), c.ConfigFile)
	if err != nil {
		return cfg, err
	}
	if c.SettingsDir != "" {
		cfg.Settings.Dir = c.SettingsDir
	}
	if c.Backend != "" {
		cfg.Settings.Backend = c.Backend
	}
	if c.CPU != "" {
		cfg.CPU.Type = c.CPU
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Logger creates a logger for CLI commands.
// Precedence: --log, then OPSTART_LOG, then the config file.
func (c *CLI) Logger(cfg config.Config) (*slog.Logger, error) {
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	return logging.New(logging.Options{
		CLISpec:    c.Log,
		EnvSpec:    os.Getenv(logging.EnvVar),
		ConfigSpec: cfg.Logging.ToSpec(),
		Format:     format,
		Output:     c.errOut(),
	})
}

func (c *CLI) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *CLI) errOut() io.Writer {
	if c.Err == nil {
		return os.Stderr
	}
	return c.Err
}

// WriteOut writes b to the output stream. A short write is an error.
func (c *CLI) WriteOut(b []byte) error {
	n, err := c.out().Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

// PrintOut writes s to the output stream.
func (c *CLI) PrintOut(s string) error {
	return c.WriteOut([]byte(s))
}

// PrintOutf formats according to a format specifier and writes to the
// output stream.
func (c *CLI) PrintOutf(format string, args ...any) error {
	return c.PrintOut(fmt.Sprintf(format, args...))
}
