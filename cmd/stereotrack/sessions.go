package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"
)

func runSessions(c *cli.Context) error {
	store, err := openStore(c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Sessions(context.Background())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(writerOf(c), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTOP\tFRAMES\tSAMPLES\tLOSSES\tMEAN QUALITY")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.3f\n",
			s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.StopReason,
			s.Stats.Frames, s.Stats.Samples, s.Stats.Losses, s.Stats.MeanQuality)
	}
	return tw.Flush()
}

func runShow(c *cli.Context) error {
	id := c.Args().Get(0)
	if id == "" {
		return errors.New("session id is required")
	}
	store, err := openStore(c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.Session(context.Background(), id); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	samples, err := store.Samples(context.Background(), id)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(writerOf(c), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tX\tY\tDEPTH\tQUALITY")
	for _, s := range samples {
		depth := "-"
		if s.DepthValid {
			depth = fmt.Sprintf("%.4f", s.Depth)
		}
		fmt.Fprintf(tw, "%d\t%.1f\t%.1f\t%s\t%.3f\n", s.FrameIndex, s.X, s.Y, depth, s.Quality)
	}
	return tw.Flush()
}

func runDelete(c *cli.Context) error {
	id := c.Args().Get(0)
	if id == "" {
		return errors.New("session id is required")
	}
	store, err := openStore(c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()
	return store.DeleteSession(context.Background(), id)
}

func writerOf(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}
