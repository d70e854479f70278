// Command stereotrack tracks an operator-selected object through a stereo
// video pair and records its image position and estimated depth per frame.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/banshee-data/stereotrack/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "stereotrack"
	app.Usage = "Track an object through a stereo video pair and estimate its depth"
	app.UsageText = "stereotrack [command] [options]"
	app.Version = version.String()
	app.Commands = []cli.Command{
		{
			Name:    "track",
			Aliases: []string{"t"},
			Usage:   "Run a tracking session over a left/right stream pair",
			Flags:   trackFlags,
			Action:  runTrack,
		},
		{
			Name:    "sessions",
			Aliases: []string{"ls"},
			Usage:   "List sessions stored in the database",
			Flags:   []cli.Flag{dbFlag},
			Action:  runSessions,
		},
		{
			Name:      "show",
			Usage:     "Print the trajectory of a stored session",
			ArgsUsage: "SESSION_ID",
			Flags:     []cli.Flag{dbFlag},
			Action:    runShow,
		},
		{
			Name:      "delete",
			Usage:     "Delete a stored session",
			ArgsUsage: "SESSION_ID",
			Flags:     []cli.Flag{dbFlag},
			Action:    runDelete,
		},
	}
	return app
}
