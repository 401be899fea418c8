package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ctagard/gdbmi-dap/internal/commands"
)

const (
	errCommandError = 1
	errSetup        = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root, err := commands.NewRootCommand()
	if err != nil {
		stop()
		errorExit(err, errSetup)
	}

	err = root.ExecuteContext(ctx)
	stop()
	if err != nil {
		errorExit(err, errCommandError)
	}
}

func errorExit(err error, code int) {
	fmt.Fprintf(os.Stderr, "gdbmi-dap: %v\n", err)
	os.Exit(code)
}
