package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alvarorichard/firedl/internal/util"
	"github.com/alvarorichard/firedl/internal/version"
)

func main() {
	startAll := time.Now()

	opts, err := util.ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	if opts.Version || version.HasVersionArg() {
		version.ShowVersion()
		return
	}

	if opts.Help {
		util.ShowHelp()
		return
	}

	util.SetDebugMode(opts.Debug)
	util.InitLogger()
	util.Debug("starting firedl", "version", version.Version, "native", opts.Native)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(opts)
	if err != nil {
		util.Fatal(util.ErrorHandler(err))
	}

	if opts.Native {
		err = app.serveNative(ctx, os.Stdin, os.Stdout)
	} else {
		err = app.run(ctx)
	}
	util.Debugf("finished in %v", time.Since(startAll))

	if err != nil {
		stop()
		util.Fatal(util.ErrorHandler(err))
	}
}
