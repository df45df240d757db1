//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joeycumines/stumpy"

	"quartz/app"
	"quartz/hal"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to quartz.yaml (defaults apply when empty or missing).")
		headless   = flag.Bool("headless", false, "Run without a window.")
		runFor     = flag.Duration("run", 0, "Stop after this long (0 = run until shutdown).")
		scale      = flag.Int("scale", 0, "Window scale factor (0 = config value).")
	)
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *scale > 0 {
		cfg.WindowScale = *scale
	}

	log := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(cfg.Level()),
	).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := hal.New()
	sys := app.New(h, cfg, log)

	done := make(chan error, 1)
	go func() {
		done <- sys.Run(ctx)
		cancel() // window follows the OS down
	}()

	var uiErr error
	if *headless {
		uiErr = hal.RunHeadless(ctx)
	} else {
		uiErr = hal.RunWindow(ctx, h, cfg.WindowScale)
	}
	cancel() // OS follows the window down

	if err := <-done; !clean(err) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !clean(uiErr) {
		fmt.Fprintln(os.Stderr, uiErr)
		os.Exit(1)
	}
}

func clean(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
