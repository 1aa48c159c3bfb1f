package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"groupcast/internal/app"
)

func main() {
	var (
		cfgPath string
		runNow  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&runNow, "run-now", false, "trigger one scheduling run immediately on startup")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	if runNow {
		a.Runner().RunOnce(ctx)
	}

	<-ctx.Done()
	_ = a.Stop(context.Background())
}
