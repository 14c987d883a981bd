package main

import (
	"context"
	"os"
	"syscall"

	"github.com/MeKo-Tech/prodshot/cmd/prodshot/cmd"
	"github.com/MeKo-Tech/prodshot/internal/version"
	"github.com/charmbracelet/fang"
)

func main() {
	root := cmd.NewRootCmd()

	// fang adds styled help, completions, --version and a context that is
	// cancelled on SIGINT/SIGTERM.
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version.String()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
