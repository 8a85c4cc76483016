package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"grading_system/invoker/convention"
	"grading_system/lib/customfields"

	"gopkg.in/yaml.v3"
)

const ProblemConfigFile = "problem.yaml"

var (
	ErrAmbiguousStrategy = errors.New("problem defines more than one grading strategy")
	ErrNoStrategy        = errors.New("problem defines no grading strategy")
)

// ProblemConfig is read from problem.yaml inside problem directory.
// Exactly one of custom_judge, interactive and signature_grader must be set.
type ProblemConfig struct {
	TimeLimit   customfields.Time   `yaml:"time_limit"`
	MemoryLimit customfields.Memory `yaml:"memory_limit"`
	OutputLimit customfields.Memory `yaml:"output_limit"`

	// CustomJudge names registered grade or interact routine
	CustomJudge *string `yaml:"custom_judge,omitempty"`
	// Unbuffered connects submission stdout to a pseudo-terminal, so stdio flushes on every write
	Unbuffered bool `yaml:"unbuffered"`

	Interactive     *InteractiveConfig     `yaml:"interactive,omitempty"`
	SignatureGrader *SignatureGraderConfig `yaml:"signature_grader,omitempty"`

	// Dir is the problem directory, all files are resolved against it
	Dir string `yaml:"-"`
}

type InteractiveConfig struct {
	Files             FileList            `yaml:"files"`
	Lang              string              `yaml:"lang"`
	Flags             []string            `yaml:"flags,omitempty"`
	CompilerTimeLimit customfields.Time   `yaml:"compiler_time_limit"`
	PreprocessingTime customfields.Time   `yaml:"preprocessing_time"`
	MemoryLimit       customfields.Memory `yaml:"memory_limit"`
	Type              string              `yaml:"type"`
}

type SignatureGraderConfig struct {
	Entry   string         `yaml:"entry"`
	Header  string         `yaml:"header"`
	Checker *CheckerConfig `yaml:"checker,omitempty"`
}

// CheckerConfig selects built-in checker by name, or a testlib checker compiled from files
type CheckerConfig struct {
	Name  string   `yaml:"name"`
	Files FileList `yaml:"files,omitempty"`
	Lang  string   `yaml:"lang,omitempty"`
	Flags []string `yaml:"flags,omitempty"`
}

const (
	CheckerStandard  = "standard"
	CheckerIdentical = "identical"
	CheckerTestlib   = "testlib"
)

// FileList accepts both a single file name and a list of them
type FileList []string

func (f *FileList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*f = FileList{s}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*f = list
	return nil
}

// InteractorLimits returns limits for the interactor process of a bridged problem
func (p *ProblemConfig) InteractorLimits() *RunLimitsConfig {
	limits := &RunLimitsConfig{
		TimeLimit:   p.Interactive.PreprocessingTime + p.TimeLimit,
		MemoryLimit: p.Interactive.MemoryLimit,
		MaxThreads:  -1,
	}
	limits.FillIn()
	return limits
}

// SubmissionLimits returns limits of submission process, wall time is scaled by wallTimeFactor
func (p *ProblemConfig) SubmissionLimits(wallTimeFactor float64) *RunLimitsConfig {
	limits := &RunLimitsConfig{
		TimeLimit:     p.TimeLimit,
		MemoryLimit:   p.MemoryLimit,
		WallTimeLimit: p.TimeLimit.Scale(wallTimeFactor),
		MaxOutputSize: p.OutputLimit,
	}
	limits.FillIn()
	return limits
}

func (p *ProblemConfig) Path(name string) string {
	return filepath.Join(p.Dir, name)
}

func ReadProblemConfig(dir string, grader *GraderConfig) (*ProblemConfig, error) {
	content, err := os.ReadFile(filepath.Join(dir, ProblemConfigFile))
	if err != nil {
		return nil, fmt.Errorf("can not read problem config, error: %v", err)
	}
	return ParseProblemConfig(content, dir, grader)
}

func ParseProblemConfig(content []byte, dir string, grader *GraderConfig) (*ProblemConfig, error) {
	problem := new(ProblemConfig)
	err := yaml.Unmarshal(content, problem)
	if err != nil {
		return nil, fmt.Errorf("can not parse problem config, error: %v", err)
	}
	problem.Dir = dir
	fillInProblemConfig(problem, grader)

	err = problem.Validate()
	if err != nil {
		return nil, err
	}
	return problem, nil
}

func fillInProblemConfig(problem *ProblemConfig, grader *GraderConfig) {
	if problem.MemoryLimit == 0 {
		problem.MemoryLimit.FromStr("256m")
	}
	if problem.OutputLimit == 0 {
		problem.OutputLimit.FromStr("64m")
	}
	if problem.Interactive != nil {
		if problem.Interactive.MemoryLimit == 0 {
			problem.Interactive.MemoryLimit = grader.InteractorMemoryLimit
		}
		if problem.Interactive.Type == "" {
			problem.Interactive.Type = "default"
		}
	}
	if problem.SignatureGrader != nil && problem.SignatureGrader.Checker == nil {
		problem.SignatureGrader.Checker = &CheckerConfig{Name: CheckerStandard}
	}
}

func (p *ProblemConfig) Validate() error {
	strategies := 0
	if p.CustomJudge != nil {
		strategies++
	}
	if p.Interactive != nil {
		strategies++
	}
	if p.SignatureGrader != nil {
		strategies++
	}
	switch {
	case strategies == 0:
		return ErrNoStrategy
	case strategies > 1:
		return ErrAmbiguousStrategy
	}

	if p.TimeLimit == 0 {
		return fmt.Errorf("problem time_limit is not specified")
	}

	switch {
	case p.CustomJudge != nil:
		if len(*p.CustomJudge) == 0 {
			return fmt.Errorf("custom_judge is empty")
		}
	case p.Interactive != nil:
		return p.validateInteractive()
	case p.SignatureGrader != nil:
		return p.validateSignatureGrader()
	}
	return nil
}

func (p *ProblemConfig) validateInteractive() error {
	if _, err := convention.Lookup(p.Interactive.Type); err != nil {
		return fmt.Errorf("invalid interactive type, error: %w", err)
	}
	if len(p.Interactive.Lang) == 0 {
		return fmt.Errorf("interactor lang is not specified")
	}
	if len(p.Interactive.Files) == 0 {
		return fmt.Errorf("interactor files are not specified")
	}
	return p.requireFiles(p.Interactive.Files...)
}

func (p *ProblemConfig) validateSignatureGrader() error {
	s := p.SignatureGrader
	if len(s.Entry) == 0 || len(s.Header) == 0 {
		return fmt.Errorf("signature grader requires both entry and header")
	}
	err := p.requireFiles(s.Entry, s.Header)
	if err != nil {
		return err
	}

	switch s.Checker.Name {
	case CheckerStandard, CheckerIdentical:
		return nil
	case CheckerTestlib:
		if len(s.Checker.Lang) == 0 || len(s.Checker.Files) == 0 {
			return fmt.Errorf("testlib checker requires lang and files")
		}
		return p.requireFiles(s.Checker.Files...)
	default:
		return fmt.Errorf("unknown checker %s", s.Checker.Name)
	}
}

func (p *ProblemConfig) requireFiles(names ...string) error {
	for _, name := range names {
		_, err := os.Stat(p.Path(name))
		if err != nil {
			return fmt.Errorf("problem file %s is not accessible, error: %v", name, err)
		}
	}
	return nil
}
