package logging_test

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-opstart/logging"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		input     string
		wantBase  logging.Level
		wantComps map[string]logging.Level
		wantErr   string
	}{
		{input: "", wantBase: logging.LevelInfo},
		{input: "debug", wantBase: logging.LevelDebug},
		{
			input:     " warn , manager = debug , settings=trace ",
			wantBase:  logging.LevelWarn,
			wantComps: map[string]logging.Level{"manager": logging.LevelDebug, "settings": logging.LevelTrace},
		},
		{
			input:     "launch=error",
			wantBase:  logging.LevelInfo,
			wantComps: map[string]logging.Level{"launch": logging.LevelError},
		},
		{input: "manager=debug,warn", wantErr: "must be first"},
		{input: "=debug", wantErr: "empty component"},
		{input: "manager=loud", wantErr: "invalid level"},
		{input: "chatty", wantErr: "unknown log level"},
		{input: "info,gui=debug", wantErr: `unknown component "gui"`},
		{
			input:     "info,exec=off",
			wantBase:  logging.LevelInfo,
			wantComps: map[string]logging.Level{"exec": logging.LevelOff},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := logging.ParseSpec(tt.input)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBase, spec.BaseLevel)
			for c, l := range tt.wantComps {
				assert.Equal(t, l, spec.LevelFor(c), c)
			}
			assert.Equal(t, tt.wantBase, spec.LevelFor("unlisted"))
		})
	}
}

func TestSpec_StringRoundTrip(t *testing.T) {
	spec, err := logging.ParseSpec("warn,poller=trace,manager=debug")
	require.NoError(t, err)
	assert.Equal(t, "warn,manager=debug,poller=trace", spec.String())

	again, err := logging.ParseSpec(spec.String())
	require.NoError(t, err)
	assert.Equal(t, spec, again)
}

func TestParseLevel(t *testing.T) {
	for _, l := range []logging.Level{logging.LevelTrace, logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError, logging.LevelOff} {
		got, err := logging.ParseLevel(strings.ToUpper(l.String()))
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	assert.Equal(t, "Level(2)", logging.Level(2).String())

	none, err := logging.ParseLevel("none")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelOff, none)
}

func TestComponents(t *testing.T) {
	names := logging.Components()
	assert.True(t, slices.IsSorted(names))
	for _, c := range []string{logging.Manager, logging.Exec, logging.Poller, logging.SettingsDB} {
		assert.Contains(t, names, c)
	}

	names[0] = "mutated"
	assert.NotContains(t, logging.Components(), "mutated")
}

func TestNew_ComponentFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{CLISpec: "warn,manager=debug", Output: &buf})
	require.NoError(t, err)

	logger.Info("root info")
	assert.Empty(t, buf.String())

	manager := logger.With(logging.ComponentKey, logging.Manager)
	manager.Debug("manager debug")
	assert.Contains(t, buf.String(), "manager debug")

	buf.Reset()
	manager.WithGroup("req").Debug("grouped")
	assert.Contains(t, buf.String(), "grouped", "groups keep the component")

	buf.Reset()
	logger.With(logging.ComponentKey, logging.Poller).Info("poller info")
	assert.Empty(t, buf.String(), "unlisted component uses base level")

	buf.Reset()
	logger.With(logging.ComponentKey, logging.Manager).Log(context.Background(), logging.LevelTrace.ToSlog(), "too low")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger.WithGroup("req").With(logging.ComponentKey, logging.Manager).Debug("not a tag")
	assert.Empty(t, buf.String(), "component inside a group is an ordinary attribute")
}

func TestNew_ComponentOff(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{CLISpec: "info,exec=off", Output: &buf})
	require.NoError(t, err)

	exec := logger.With(logging.ComponentKey, logging.Exec)
	exec.Error("daemon stderr")
	assert.Empty(t, buf.String())
	assert.False(t, exec.Enabled(context.Background(), logging.LevelError.ToSlog()))

	logger.With(logging.ComponentKey, logging.Launch).Info("launching")
	assert.Contains(t, buf.String(), "launching")
}

func TestNew_Precedence(t *testing.T) {
	tests := []struct {
		name string
		opts logging.Options
		want logging.Level
	}{
		{"cli wins", logging.Options{CLISpec: "error", EnvSpec: "debug", ConfigSpec: "info"}, logging.LevelError},
		{"env over config", logging.Options{EnvSpec: "debug", ConfigSpec: "warn"}, logging.LevelDebug},
		{"config", logging.Options{ConfigSpec: "warn"}, logging.LevelWarn},
		{"default info", logging.Options{}, logging.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf
			logger, err := logging.New(tt.opts)
			require.NoError(t, err)

			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tt.want.ToSlog()))
			assert.False(t, logger.Enabled(ctx, (tt.want - 4).ToSlog()))
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := logging.New(logging.Options{CLISpec: "nonsense"})
	require.ErrorContains(t, err, "invalid log spec")

	_, err = logging.ParseFormat("xml")
	require.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: logging.FormatJSON, Output: &buf})
	require.NoError(t, err)

	logger.Info("saved", "slot", 1)
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"msg":"saved"`)
	assert.Contains(t, buf.String(), `"slot":1`)
}
