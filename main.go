package main

import (
	"context"
	"os"

	"etlbranching/internal/cli"
)

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	os.Exit(cli.Execute(context.Background(), version))
}
