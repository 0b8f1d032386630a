package main

import (
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/scorecard/pkg/cli"
)

func main() {
	logger := cli.NewLogger(os.Getenv("SCORECARD_LOG_LEVEL"), os.Stderr)
	root := cli.NewRootCommand(logger, os.Stdout)

	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
