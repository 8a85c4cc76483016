package config

import (
	"grading_system/lib/customfields"
)

type GraderConfig struct {
	SandboxType     string `yaml:"SandboxType"`
	SandboxHomePath string `yaml:"SandboxHomePath"`

	// Sandboxes bounds number of sandboxes existing at the same time.
	// Isolate sandboxes use box ids from IsolateBoxID to IsolateBoxID+Sandboxes-1
	Sandboxes    int `yaml:"Sandboxes"`
	IsolateBoxID int `yaml:"IsolateBoxID"`

	// CacheSize bounds total size of compiled interactors, checkers and signature binaries
	CacheSize uint64 `yaml:"CacheSize"`
	CachePath string `yaml:"CachePath"`

	SaveOutputHead *uint64 `yaml:"SaveOutputHead,omitempty"`

	CompilerConfigsFolder string `yaml:"CompilerConfigsFolder"`

	CheckerLimits *RunLimitsConfig `yaml:"CheckerLimits,omitempty"`

	// InteractorMemoryLimit is used for interactors which do not set memory_limit
	InteractorMemoryLimit customfields.Memory `yaml:"InteractorMemoryLimit"`

	// WallTimeFactor is the default ratio of wall time ceiling to time limit
	WallTimeFactor float64 `yaml:"WallTimeFactor"`
}

func FillInGraderConfig(config *GraderConfig) {
	if config.SandboxType == "" {
		config.SandboxType = "simple"
	}
	if config.SandboxHomePath == "" {
		switch config.SandboxType {
		case "simple":
			panic("No sandbox home path specified")
		case "isolate":
			panic("No isolate home path specified (it is used for meta files)")
		default:
			panic("unsupported sandbox type: " + config.SandboxType)
		}
	}
	if config.Sandboxes == 0 {
		config.Sandboxes = 8
	}
	if config.Sandboxes < 2 {
		panic("At least two sandboxes are required for interactive grading")
	}
	if len(config.CachePath) == 0 {
		panic("No grader cache path specified")
	}
	if config.CacheSize == 0 {
		panic("No grader cache size specified")
	}
	if len(config.CompilerConfigsFolder) == 0 {
		panic("No grader compiler folder specified")
	}

	if config.CheckerLimits == nil {
		config.CheckerLimits = &RunLimitsConfig{}
	}
	fillInDefaultCheckerRunLimitsConfig(config.CheckerLimits)

	if config.InteractorMemoryLimit == 0 {
		config.InteractorMemoryLimit.FromStr("256m")
	}
	if config.WallTimeFactor == 0 {
		config.WallTimeFactor = 3
	}
}
