package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"

	"github.com/ai8future/ledgercrypt/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.New().ExecuteContext(ctx); err != nil {
		if !cli.IsReported(err) {
			_, _ = fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+err.Error())
		}
		stop()
		os.Exit(1)
	}
}
