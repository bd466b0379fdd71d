package cli

import (
	"context"

	"github.com/frobware/go-opstart"
)

// ConfigCmd prints the daemon configuration, or changes and saves it
// when any flag is given.
type ConfigCmd struct {
	OutputFlags

	KernelImage         *string `name:"kernel-image" help:"Kernel image with symbols."`
	SystemMap           *string `name:"system-map" help:"Kernel System.map."`
	BaseDir             *string `name:"base-dir" help:"Daemon base directory."`
	SamplesDir          *string `name:"samples-dir" help:"Samples directory, relative to the base directory."`
	DeviceFile          *string `name:"device-file" help:"Profiler device file."`
	HashMapDevice       *string `name:"hash-map-device" help:"Profiler hash map device file."`
	LogFile             *string `name:"log-file" help:"Daemon log file."`
	BufferSize          *uint32 `name:"buffer-size" help:"Kernel sample buffer size."`
	HashTableSize       *uint32 `name:"hash-table-size" help:"Kernel hash table size."`
	PIDFilter           *uint32 `name:"pid-filter" help:"Only profile this process id (0 for all)."`
	PGRPFilter          *uint32 `name:"pgrp-filter" help:"Only profile this process group (0 for all)."`
	IgnoreDaemonSamples *bool   `name:"ignore-daemon-samples" help:"Ignore samples taken in the daemon."`
	KernelOnly          *bool   `name:"kernel-only" help:"Profile the kernel only."`
	Verbose             *bool   `name:"verbose" help:"Verbose daemon logging."`
}

// Run executes the config command.
func (c *ConfigCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	m := rt.Manager
	if c.changes() {
		if err := m.UpdateGlobal(c.apply); err != nil {
			return err
		}
		if err := m.Save(ctx); err != nil {
			return err
		}
	}

	g := m.Global()
	output, err := format(g, &c.OutputFlags, func() string {
		return formatGlobalTable(g)
	})
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

func (c *ConfigCmd) changes() bool {
	changed := false
	c.visit(&opstart.GlobalConfig{}, func() { changed = true })
	return changed
}

func (c *ConfigCmd) apply(g *opstart.GlobalConfig) {
	c.visit(g, func() {})
}

// visit copies every given flag into g, calling set for each.
func (c *ConfigCmd) visit(g *opstart.GlobalConfig, set func()) {
	str := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
			set()
		}
	}
	num := func(dst *uint32, src *uint32) {
		if src != nil {
			*dst = *src
			set()
		}
	}
	flag := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
			set()
		}
	}

	str(&g.KernelImage, c.KernelImage)
	str(&g.SystemMap, c.SystemMap)
	str(&g.BaseDir, c.BaseDir)
	str(&g.SamplesDir, c.SamplesDir)
	str(&g.DeviceFile, c.DeviceFile)
	str(&g.HashMapDevice, c.HashMapDevice)
	str(&g.LogFile, c.LogFile)
	num(&g.BufferSize, c.BufferSize)
	num(&g.HashTableSize, c.HashTableSize)
	num(&g.PIDFilter, c.PIDFilter)
	num(&g.PGRPFilter, c.PGRPFilter)
	flag(&g.IgnoreDaemonSamples, c.IgnoreDaemonSamples)
	flag(&g.KernelOnly, c.KernelOnly)
	flag(&g.Verbose, c.Verbose)
}
