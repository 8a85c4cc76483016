// Package invoker wires grading of a submission: sandboxes, judge code compilation, graders and metrics.
package invoker

import (
	"context"
	"errors"
	"time"

	"grading_system/common/config"
	"grading_system/common/metrics"
	"grading_system/invoker/compiler"
	"grading_system/invoker/grader"
	"grading_system/invoker/result"
	"grading_system/lib/logger"
)

type Invoker struct {
	Config   *config.GraderConfig
	Compiler *compiler.Compiler
	Metrics  *metrics.Collector

	slots chan int
}

func NewInvoker(c *config.GraderConfig, collector *metrics.Collector) (*Invoker, error) {
	i := &Invoker{
		Config:  c,
		Metrics: collector,
		slots:   make(chan int, c.Sandboxes),
	}
	for slot := range c.Sandboxes {
		i.slots <- slot
	}

	var err error
	i.Compiler, err = compiler.NewCompiler(c, i.NewSandbox)
	if err != nil {
		return nil, err
	}
	logger.Info("Configured invoker with %d %s sandboxes", c.Sandboxes, c.SandboxType)
	return i, nil
}

func (i *Invoker) Environment() *grader.Environment {
	return &grader.Environment{
		Config:     i.Config,
		Compiler:   i.Compiler,
		NewSandbox: i.NewSandbox,
	}
}

// CompileSubmission builds submission for strategies which run it as is.
// Compilation errors are returned as *compiler.CompileError. Release must be called after grading.
func (i *Invoker) CompileSubmission(ctx context.Context, language string, source []byte) (*grader.Submission, func(), error) {
	l, ok := i.Compiler.Languages[language]
	if !ok {
		return nil, func() {}, errors.New("unknown submission language " + language)
	}
	artifact, release, err := i.Compiler.Compile(ctx, &compiler.Request{
		Language: language,
		Sources:  []compiler.Source{{Name: "solution" + l.Extension, Content: source}},
	})
	if err != nil {
		return nil, release, err
	}
	return &grader.Submission{Language: language, Source: source, Binary: artifact.Path}, release, nil
}

// Grade grades test cases one after another. Invalid problem configuration makes every case IE.
func (i *Invoker) Grade(
	ctx context.Context,
	problem *config.ProblemConfig,
	submission *grader.Submission,
	cases []*grader.TestCase,
) []*result.Result {
	results := make([]*result.Result, 0, len(cases))
	g, err := grader.New(problem, submission, i.Environment())
	if err != nil {
		logger.Error("Can not create grader for problem %s, error: %v", problem.Dir, err)
		for _, tc := range cases {
			results = append(results, result.InternalError("invalid problem configuration", err.Error()).Finalize(tc.Points))
		}
		return results
	}

	for _, tc := range cases {
		start := time.Now()
		res := g.Grade(ctx, tc)
		if i.Metrics != nil {
			i.Metrics.ProcessResult(g.Strategy(), res.Flag, res.Points, time.Since(start))
		}
		logger.Info("Graded case %d of problem %s, verdict %s, points %d/%d", tc.Position, problem.Dir, res.Flag, res.Points, tc.Points)
		results = append(results, res)
	}
	return results
}
