package main

import (
	"github.com/alecthomas/kong"
	"github.com/lox/blackjack/internal/client/commands"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	commands.GlobalFlags

	Version kong.VersionFlag   `short:"v" help:"Show version"`
	Server  ServerCmd          `cmd:"" help:"Run the blackjack server"`
	Migrate MigrateCmd         `cmd:"" help:"Apply or roll back the database schema"`
	Play    PlayCmd            `cmd:"" help:"Play interactively in the terminal"`
	Player  commands.PlayerCmd `cmd:"" help:"Manage players"`
	Game    commands.GameCmd   `cmd:"" help:"Play games one command at a time"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("blackjack"),
		kong.Description("Single-player blackjack server and clients"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.GlobalFlags)
	ctx.FatalIfErrorf(err)
}
