package config

import (
	"os"

	"grading_system/lib/logger"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger *logger.Config `yaml:"Logger,omitempty"`

	Grader *GraderConfig `yaml:"Grader,omitempty"`

	// MetricsPath is a prometheus textfile written after grading, metrics are not exported when empty
	MetricsPath *string `yaml:"MetricsPath,omitempty"`
}

func ReadConfig(configPath string) *Config {
	content, err := os.ReadFile(configPath)
	if err != nil {
		panic(err)
	}

	config := new(Config)
	err = yaml.Unmarshal(content, config)
	if err != nil {
		panic(err)
	}

	fillInConfig(config)

	return config
}

func fillInConfig(config *Config) {
	if config.Grader == nil {
		panic("No grader config specified")
	}
	FillInGraderConfig(config.Grader)
}
