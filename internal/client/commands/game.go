package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/lox/blackjack/internal/client"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/service"
)

// GameCmd groups the game subcommands
type GameCmd struct {
	New    GameNewCmd    `cmd:"" help:"Start a new game"`
	Show   GameShowCmd   `cmd:"" help:"Show a game"`
	Hit    GameHitCmd    `cmd:"" help:"Draw a card"`
	Stand  GameStandCmd  `cmd:"" help:"Stand and let the dealer play"`
	Result GameResultCmd `cmd:"" help:"Show the result of a finished game"`
	Delete GameDeleteCmd `cmd:"" help:"Delete a game"`
	List   GameListCmd   `cmd:"" help:"List a player's games"`
}

func (f *GlobalFlags) printResult(res service.Result) error {
	if f.JSON {
		return printJSON(f.stdout(), res)
	}
	printResult(f.stdout(), res)
	return nil
}

type GameNewCmd struct {
	Player string `arg:"" optional:"" help:"Player name (defaults to the config's player)"`
}

func (cmd *GameNewCmd) Run(flags *GlobalFlags) error {
	c, cfg, _, err := SetupClient(flags)
	if err != nil {
		return err
	}

	name := cmd.Player
	if name == "" {
		name = cfg.PlayerName()
	}
	if name == "" {
		return fmt.Errorf("player name is required")
	}

	res, err := c.CreateGame(context.Background(), name)
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	return flags.printResult(res)
}

type GameShowCmd struct {
	ID string `arg:"" help:"Game id"`
}

func (cmd *GameShowCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}

	res, err := c.GetGame(context.Background(), cmd.ID)
	if err != nil {
		return err
	}
	return flags.printResult(res)
}

type GameHitCmd struct {
	ID string `arg:"" help:"Game id"`
}

func (cmd *GameHitCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}
	return playMove(c, flags, cmd.ID, game.Hit)
}

type GameStandCmd struct {
	ID string `arg:"" help:"Game id"`
}

func (cmd *GameStandCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}
	return playMove(c, flags, cmd.ID, game.Stand)
}

func playMove(c *client.Client, flags *GlobalFlags, id string, move game.Move) error {
	res, err := c.Move(context.Background(), id, move)
	if err != nil {
		return fmt.Errorf("%s: %w", move, err)
	}
	return flags.printResult(res)
}

type GameResultCmd struct {
	ID string `arg:"" help:"Game id"`
}

func (cmd *GameResultCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}

	res, err := c.Result(context.Background(), cmd.ID)
	if err != nil {
		return err
	}
	return flags.printResult(res)
}

type GameDeleteCmd struct {
	ID string `arg:"" help:"Game id"`
}

func (cmd *GameDeleteCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}

	if err := c.DeleteGame(context.Background(), cmd.ID); err != nil {
		return err
	}
	if !flags.JSON {
		_, _ = fmt.Fprintf(flags.stdout(), "Deleted game %s\n", cmd.ID)
	}
	return nil
}

type GameListCmd struct {
	PlayerID int64 `arg:"" help:"Player id"`
}

func (cmd *GameListCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}

	games, err := c.ListGames(context.Background(), cmd.PlayerID)
	if err != nil {
		return err
	}
	if flags.JSON {
		return printJSON(flags.stdout(), games)
	}

	tw := tabwriter.NewWriter(flags.stdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tWINNER\tYOU\tDEALER")
	for _, g := range games {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", g.ID, g.Status, g.Winner, g.PlayerScore, g.DealerScore)
	}
	return tw.Flush()
}
