package main

import (
	"fmt"
	"os"

	app "github.com/valter-silva-au/rmb/internal"
	"github.com/valter-silva-au/rmb/internal/cli"
)

// Set with -ldflags "-X main.version=..." at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	basePath := app.ResolveBasePath()

	a, err := app.NewApp(basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing rmb: %v\n", err)
		os.Exit(1)
	}

	err = cli.Execute()
	_ = a.Close() // Non-fatal: annotations are saved on every mutation.
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
