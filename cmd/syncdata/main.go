// Command syncdata bulk-exports and imports portfolio data as JSON, and
// checks database connectivity. Intended for moving a portfolio between
// environments (local → hosted) without going through the HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for DATABASE_URL; absence is fine.
	_ = godotenv.Load()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(&exportCmd{}, "")
	commander.Register(&importCmd{}, "")
	commander.Register(&pingCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
