package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"grading_system/common/config"
	"grading_system/common/metrics"
	"grading_system/invoker"
	"grading_system/invoker/compiler"
	"grading_system/invoker/convention"
	"grading_system/invoker/grader"
	"grading_system/invoker/result"
	"grading_system/lib/logger"

	"github.com/urfave/cli/v3"
)

type gradeReport struct {
	CompileError string           `json:"CompileError,omitempty"`
	Results      []*result.Result `json:"Results,omitempty"`
	Score        int              `json:"Score"`
}

func gradeCommand() *cli.Command {
	return &cli.Command{
		Name:      "grade",
		Usage:     "grade a submission on test cases of a problem and print results as JSON",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "problem", Aliases: []string{"p"}, Usage: "problem directory with problem.yaml", Required: true},
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "submission source file"},
			&cli.StringFlag{Name: "lang", Aliases: []string{"l"}, Usage: "submission language"},
			&cli.StringFlag{Name: "binary", Usage: "already built submission executable, replaces --source"},
			&cli.StringSliceFlag{Name: "input", Aliases: []string{"i"}, Usage: "case input file, may be repeated", Required: true},
			&cli.StringSliceFlag{Name: "answer", Aliases: []string{"a"}, Usage: "case answer file, one per input"},
			&cli.IntFlag{Name: "points", Value: 1, Usage: "points of every case"},
			&cli.FloatFlag{Name: "wall-time-factor", Usage: "wall time limit as a multiple of time limit"},
			&cli.StringFlag{Name: "metrics", Usage: "prometheus textfile to write metrics to, overrides MetricsPath"},
		},
		Action: runGrade,
	}
}

func runGrade(ctx context.Context, cmd *cli.Command) error {
	c := loadConfig(cmd)

	problem, err := config.ReadProblemConfig(cmd.String("problem"), c.Grader)
	if err != nil {
		return err
	}
	cases, err := readCases(cmd)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	i, err := invoker.NewInvoker(c.Grader, collector)
	if err != nil {
		return err
	}

	report := &gradeReport{}
	submission, release, err := prepareSubmission(ctx, cmd, i, problem)
	defer release()
	var compileErr *compiler.CompileError
	switch {
	case errors.As(err, &compileErr):
		report.CompileError = compileErr.Log
	case err != nil:
		return err
	default:
		report.Results = i.Grade(ctx, problem, submission, cases)
		for _, res := range report.Results {
			report.Score += res.Points
		}
	}

	metricsPath := cmd.String("metrics")
	if metricsPath == "" && c.MetricsPath != nil {
		metricsPath = *c.MetricsPath
	}
	if metricsPath != "" {
		err = collector.WriteToTextfile(metricsPath)
		if err != nil {
			logger.Error("%v", err)
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func prepareSubmission(
	ctx context.Context,
	cmd *cli.Command,
	i *invoker.Invoker,
	problem *config.ProblemConfig,
) (*grader.Submission, func(), error) {
	if binary := cmd.String("binary"); binary != "" {
		path, err := filepath.Abs(binary)
		if err != nil {
			return nil, func() {}, fmt.Errorf("can not resolve submission binary, error: %v", err)
		}
		return &grader.Submission{Language: cmd.String("lang"), Binary: path}, func() {}, nil
	}

	if cmd.String("source") == "" || cmd.String("lang") == "" {
		return nil, func() {}, fmt.Errorf("either --binary or both --source and --lang must be set")
	}
	source, err := os.ReadFile(cmd.String("source"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("can not read submission source, error: %v", err)
	}
	if problem.SignatureGrader != nil {
		// signature submissions are compiled together with the entry for every case
		return &grader.Submission{Language: cmd.String("lang"), Source: source}, func() {}, nil
	}
	return i.CompileSubmission(ctx, cmd.String("lang"), source)
}

func readCases(cmd *cli.Command) ([]*grader.TestCase, error) {
	inputs := cmd.StringSlice("input")
	answers := cmd.StringSlice("answer")
	if len(answers) != 0 && len(answers) != len(inputs) {
		return nil, fmt.Errorf("got %d answers for %d inputs", len(answers), len(inputs))
	}

	cases := make([]*grader.TestCase, 0, len(inputs))
	for position, input := range inputs {
		tc := &grader.TestCase{
			Position:       position,
			Points:         cmd.Int("points"),
			WallTimeFactor: cmd.Float("wall-time-factor"),
		}
		var err error
		tc.InputData, err = os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("can not read case input, error: %v", err)
		}
		if len(answers) != 0 {
			tc.OutputData, err = os.ReadFile(answers[position])
			if err != nil {
				return nil, fmt.Errorf("can not read case answer, error: %v", err)
			}
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

func routinesCommand() *cli.Command {
	return &cli.Command{
		Name:  "routines",
		Usage: "list registered grading routines and interactor conventions",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println("routines:")
			for _, name := range grader.Routines() {
				fmt.Println("  " + name)
			}
			fmt.Println("conventions:")
			for _, name := range convention.Names() {
				fmt.Println("  " + name)
			}
			return nil
		},
	}
}
