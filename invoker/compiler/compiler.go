package compiler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"text/template"

	"grading_system/common/config"
	"grading_system/common/constants/verdict"
	"grading_system/invoker/sandbox"
	"grading_system/lib/cache"
	"grading_system/lib/customfields"
	"grading_system/lib/logger"

	"github.com/xorcare/pointer"
	"gopkg.in/yaml.v3"
)

const (
	compileScriptFile = "compile.sh"
	binaryFile        = "binary"
)

type Config struct {
	DefaultLimits *config.RunLimitsConfig `yaml:"DefaultLimits"`
	Languages     map[string]*Language    `yaml:"Languages"`
}

// Compiler builds executables from sources inside sandboxes. Built executables are cached by
// hash of language, flags and sources.
type Compiler struct {
	Languages map[string]*Language

	newSandbox sandbox.Factory
	cacheDir   string
	artifacts  *cache.LRUSizeCache[string, *Artifact]
}

type Source struct {
	Name    string
	Content []byte
}

type Request struct {
	Language string
	Sources  []Source
	Flags    []string

	// TimeLimit overrides language compile time limit if set
	TimeLimit customfields.Time

	// TemplateValues override language template values
	TemplateValues map[string]interface{}
}

type Artifact struct {
	// Path is the executable, empty if compilation failed
	Path string
	Log  string
}

type CompileError struct {
	Language string
	Log      string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compilation error for language %s", e.Language)
}

func NewCompiler(graderConfig *config.GraderConfig, newSandbox sandbox.Factory) (*Compiler, error) {
	configPath := filepath.Join(graderConfig.CompilerConfigsFolder, "config.yaml")
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("can not read compiler config at path %s, error: %v", configPath, err)
	}

	var compilerConfig Config
	err = yaml.Unmarshal(configData, &compilerConfig)
	if err != nil {
		return nil, fmt.Errorf("can not parse compiler config, error: %v", err)
	}
	if compilerConfig.DefaultLimits == nil {
		compilerConfig.DefaultLimits = &config.RunLimitsConfig{}
	}
	fillInCompileLimits(compilerConfig.DefaultLimits)

	err = os.MkdirAll(graderConfig.CachePath, 0755)
	if err != nil {
		return nil, fmt.Errorf("can not create compiler cache dir, error: %v", err)
	}

	c := &Compiler{
		Languages:  make(map[string]*Language),
		newSandbox: newSandbox,
		cacheDir:   graderConfig.CachePath,
	}
	c.artifacts = cache.NewLRUSizeCache[string, *Artifact](graderConfig.CacheSize, c.removeArtifact)

	for name, l := range compilerConfig.Languages {
		l.Name = name
		if l.Limits == nil {
			l.Limits = compilerConfig.DefaultLimits
		} else {
			fillInCompileLimits(l.Limits)
		}
		if l.TemplateName == nil {
			l.TemplateName = pointer.String(name + ".sh.tmpl")
		}
		l.Template, err = template.ParseFiles(filepath.Join(graderConfig.CompilerConfigsFolder, "scripts", *l.TemplateName))
		if err != nil {
			return nil, fmt.Errorf("can not parse script template for compilation of %s, error: %v", name, err)
		}
		c.Languages[name] = l
	}
	logger.Info("Configured compiler with %d languages", len(c.Languages))
	return c, nil
}

// Compile returns executable for the request. CompileError is returned if sources do not compile.
// Release must be called when the executable is copied where it is needed.
func (c *Compiler) Compile(ctx context.Context, request *Request) (*Artifact, func(), error) {
	language, ok := c.Languages[request.Language]
	if !ok {
		return nil, func() {}, fmt.Errorf("language %s does not exist", request.Language)
	}

	key := requestKey(request)
	artifact, release, err := c.artifacts.Get(key, func() (*Artifact, uint64, error) {
		return c.build(ctx, key, language, request)
	})
	if err != nil {
		return nil, release, err
	}
	if artifact.Path == "" {
		release()
		return artifact, func() {}, &CompileError{Language: language.Name, Log: artifact.Log}
	}
	return artifact, release, nil
}

func (c *Compiler) build(
	ctx context.Context,
	key string,
	language *Language,
	request *Request,
) (*Artifact, uint64, error) {
	box, err := c.newSandbox(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("can not create compilation sandbox, error: %v", err)
	}
	defer box.Delete()
	err = box.Init()
	if err != nil {
		return nil, 0, fmt.Errorf("can not initialize compilation sandbox, error: %v", err)
	}
	defer box.Cleanup()

	names := make([]string, 0, len(request.Sources))
	for _, source := range request.Sources {
		err = os.WriteFile(filepath.Join(box.Dir(), source.Name), source.Content, 0644)
		if err != nil {
			return nil, 0, fmt.Errorf("can not write source %s to sandbox, error: %v", source.Name, err)
		}
		names = append(names, source.Name)
	}

	script, err := language.GenerateScript(names, binaryFile, request.Flags, request.TemplateValues)
	if err != nil {
		return nil, 0, err
	}
	err = os.WriteFile(filepath.Join(box.Dir(), compileScriptFile), script, 0755)
	if err != nil {
		return nil, 0, fmt.Errorf("can not write compile script to sandbox, error: %v", err)
	}

	var output bytes.Buffer
	runConfig := language.GenerateExecuteConfig(&output)
	runConfig.Command = compileScriptFile
	runConfig.Ctx = ctx
	if request.TimeLimit != 0 {
		runConfig.TimeLimit = request.TimeLimit
		runConfig.WallTimeLimit = request.TimeLimit * 3
	}

	result := box.Run(runConfig)
	if result.Err != nil {
		return nil, 0, fmt.Errorf("can not run compilation in sandbox, error: %v", result.Err)
	}
	logger.Trace("Compiled %s sources %v with verdict %s", language.Name, names, result.Verdict)

	log := output.String()
	switch result.Verdict {
	case verdict.AC:
	case verdict.TLE:
		log += fmt.Sprintf("\nCompilation took more than %v time", runConfig.TimeLimit)
		return &Artifact{Log: log}, uint64(len(log)), nil
	case verdict.MLE:
		log += fmt.Sprintf("\nCompilation took more than %v memory", runConfig.MemoryLimit)
		return &Artifact{Log: log}, uint64(len(log)), nil
	default:
		return &Artifact{Log: log}, uint64(len(log)), nil
	}

	path := filepath.Join(c.cacheDir, key)
	size, err := copyFile(filepath.Join(box.Dir(), binaryFile), path, 0755)
	if err != nil {
		return nil, 0, fmt.Errorf("compilation finished but binary is not accessible, error: %v", err)
	}
	return &Artifact{Path: path, Log: log}, size + uint64(len(log)), nil
}

// CopyTo copies the executable to dst
func (a *Artifact) CopyTo(dst string) error {
	if a.Path == "" {
		return fmt.Errorf("artifact has no executable")
	}
	_, err := copyFile(a.Path, dst, 0755)
	return err
}

func (c *Compiler) removeArtifact(key string, artifact *Artifact) {
	if artifact.Path == "" {
		return
	}
	err := os.Remove(artifact.Path)
	if err != nil {
		logger.Warn("Can not remove cached binary %s, error: %v", key, err)
	}
}

func requestKey(request *Request) string {
	h := sha256.New()
	write := func(s string) {
		fmt.Fprintf(h, "%d:%s;", len(s), s)
	}
	write(request.Language)
	write(request.TimeLimit.String())
	for _, flag := range request.Flags {
		write(flag)
	}
	keys := make([]string, 0, len(request.TemplateValues))
	for k := range request.TemplateValues {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		write(k)
		write(fmt.Sprint(request.TemplateValues[k]))
	}
	for _, source := range request.Sources {
		write(source.Name)
		write(string(source.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func copyFile(src string, dst string, perm os.FileMode) (uint64, error) {
	srcReader, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer srcReader.Close()
	dstWriter, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dstWriter, srcReader)
	if err != nil {
		dstWriter.Close()
		return 0, err
	}
	return uint64(n), dstWriter.Close()
}
