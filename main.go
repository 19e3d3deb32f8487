package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/AeonDave/cfgmatch/internal"
	"github.com/AeonDave/cfgmatch/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// go build -toolexec invokes us as: cfgmatch [flags] /path/to/tool args...
	if internal.IsToolexecMode(os.Args[1:]) {
		code := internal.NewToolexecManager().Run(ctx, os.Args[1:])
		stop()
		os.Exit(code)
	}

	code := cli.Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
