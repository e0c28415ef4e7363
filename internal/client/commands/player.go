package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
)

// PlayerCmd groups the player subcommands
type PlayerCmd struct {
	Create  PlayerCreateCmd  `cmd:"" help:"Register a new player"`
	Get     PlayerGetCmd     `cmd:"" help:"Show a player"`
	Rename  PlayerRenameCmd  `cmd:"" help:"Rename a player"`
	Ranking PlayerRankingCmd `cmd:"" help:"List players by total points"`
}

type PlayerCreateCmd struct {
	Name string `arg:"" help:"Player name"`
}

func (cmd *PlayerCreateCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}

	p, err := c.CreatePlayer(context.Background(), cmd.Name)
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	if flags.JSON {
		return printJSON(flags.stdout(), p)
	}
	_, _ = fmt.Fprintf(flags.stdout(), "Created player %s #%d\n", p.Name, p.ID)
	return nil
}

type PlayerGetCmd struct {
	ID int64 `arg:"" help:"Player id"`
}

func (cmd *PlayerGetCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}

	p, err := c.GetPlayer(context.Background(), cmd.ID)
	if err != nil {
		return err
	}
	if flags.JSON {
		return printJSON(flags.stdout(), p)
	}
	_, _ = fmt.Fprintf(flags.stdout(), "%s #%d: %d points\n", p.Name, p.ID, p.TotalPoints)
	return nil
}

type PlayerRenameCmd struct {
	ID   int64  `arg:"" help:"Player id"`
	Name string `arg:"" help:"New name"`
}

func (cmd *PlayerRenameCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}

	p, err := c.RenamePlayer(context.Background(), cmd.ID, cmd.Name)
	if err != nil {
		return fmt.Errorf("rename player: %w", err)
	}
	if flags.JSON {
		return printJSON(flags.stdout(), p)
	}
	_, _ = fmt.Fprintf(flags.stdout(), "Player #%d is now %s\n", p.ID, p.Name)
	return nil
}

type PlayerRankingCmd struct {
	Limit int `default:"0" help:"Show at most this many players (0 for all)"`
}

func (cmd *PlayerRankingCmd) Run(flags *GlobalFlags) error {
	c, _, _, err := SetupClient(flags)
	if err != nil {
		return err
	}

	players, err := c.Ranking(context.Background())
	if err != nil {
		return err
	}
	if cmd.Limit > 0 && len(players) > cmd.Limit {
		players = players[:cmd.Limit]
	}
	if flags.JSON {
		return printJSON(flags.stdout(), players)
	}

	if len(players) == 0 {
		_, _ = fmt.Fprintln(flags.stdout(), "No players yet")
		return nil
	}

	tw := tabwriter.NewWriter(flags.stdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RANK\tID\tNAME\tPOINTS")
	for i, p := range players {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%d\n", i+1, p.ID, p.Name, p.TotalPoints)
	}
	return tw.Flush()
}
