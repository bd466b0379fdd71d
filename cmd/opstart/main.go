// opstart configures and drives the hardware performance-counter
// profiler.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-opstart/cmd/opstart/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var c cli.CLI
	kctx := kong.Parse(&c, cli.KongOptions()...)
	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run()
	stop()
	kctx.FatalIfErrorf(err)
}
