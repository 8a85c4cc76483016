package compiler

import (
	"bytes"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"grading_system/common/config"
	"grading_system/invoker/sandbox"
)

type Language struct {
	Name string `yaml:"-"`

	// Family is the source dialect, languages of the same family share the same preprocessor
	Family    string `yaml:"Family"`
	Extension string `yaml:"Extension"`

	TemplateValues map[string]interface{} `yaml:"TemplateValues"`

	TemplateName *string                 `yaml:"Template,omitempty"`
	Limits       *config.RunLimitsConfig `yaml:"Limits,omitempty"`

	Template *template.Template `yaml:"-"`
}

var headerExtensions = []string{".h", ".hh", ".hpp", ".hxx"}

// GenerateScript renders compile script. Headers are available to the script but not passed as units.
func (l *Language) GenerateScript(
	sources []string,
	binary string,
	flags []string,
	overrides map[string]interface{},
) ([]byte, error) {
	var units []string
	for _, source := range sources {
		if !slices.Contains(headerExtensions, strings.ToLower(filepath.Ext(source))) {
			units = append(units, source)
		}
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no compilation units for language %s", l.Name)
	}

	values := map[string]interface{}{
		"source":  units[0],
		"units":   units,
		"sources": sources,
		"binary":  binary,
		"flags":   strings.Join(flags, " "),
	}
	maps.Copy(values, l.TemplateValues)
	maps.Copy(values, overrides)

	var script bytes.Buffer
	err := l.Template.Execute(&script, values)
	if err != nil {
		return nil, fmt.Errorf("error while creating compile script for language %s, error: %s", l.Name, err.Error())
	}
	return script.Bytes(), nil
}

func (l *Language) GenerateExecuteConfig(output *bytes.Buffer) *sandbox.ExecuteConfig {
	return &sandbox.ExecuteConfig{
		RunLimitsConfig: *l.Limits,
		Stdout:          &sandbox.IORedirect{Output: output},
		StderrToStdout:  true,
	}
}

func fillInCompileLimits(c *config.RunLimitsConfig) {
	if c.TimeLimit == 0 {
		c.TimeLimit.FromStr("10s")
	}
	if c.WallTimeLimit == 0 {
		c.WallTimeLimit.FromStr("30s")
	}
	if c.MemoryLimit == 0 {
		c.MemoryLimit.FromStr("1g")
	}
	if c.MaxThreads == 0 {
		c.MaxThreads = -1
	}
	c.FillIn()
}
