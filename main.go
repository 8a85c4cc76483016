package main

import (
	"context"
	"fmt"
	"os"

	"grading_system/common/config"
	"grading_system/lib/logger"

	"github.com/urfave/cli/v3"

	_ "grading_system/invoker/scripts"
)

func main() {
	cmd := &cli.Command{
		Name:  "grading_system",
		Usage: "grade submissions of online judge problems",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.yaml",
				Usage:   "path to the grader config",
			},
		},
		Commands: []*cli.Command{
			gradeCommand(),
			routinesCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) *config.Config {
	c := config.ReadConfig(cmd.String("config"))
	logger.InitLogger(c.Logger)
	return c
}
