package compiler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"grading_system/common/config"
	"grading_system/invoker/sandbox"
	"grading_system/invoker/sandbox/simple"

	"github.com/stretchr/testify/require"
)

const testConfigsFolder = "../../configs/compiler"

type testFactory struct {
	home    string
	created atomic.Int64
}

func (f *testFactory) newSandbox(context.Context) (sandbox.ISandbox, error) {
	id := f.created.Add(1)
	return simple.NewSandbox(filepath.Join(f.home, strconv.FormatInt(id, 10)))
}

func newTestCompiler(t *testing.T) (*Compiler, *testFactory) {
	dir := t.TempDir()
	factory := &testFactory{home: filepath.Join(dir, "sandbox")}
	c, err := NewCompiler(&config.GraderConfig{
		CompilerConfigsFolder: testConfigsFolder,
		CachePath:             filepath.Join(dir, "cache"),
		CacheSize:             1 << 20,
	}, factory.newSandbox)
	require.NoError(t, err)
	return c, factory
}

func TestLanguages(t *testing.T) {
	c, _ := newTestCompiler(t)
	for _, name := range []string{"c", "cpp", "cpp20", "sh"} {
		require.Contains(t, c.Languages, name)
	}
	require.Equal(t, "cpp", c.Languages["cpp20"].Family)
	require.Equal(t, int64(-1), c.Languages["cpp"].Limits.MaxThreads)
	require.Equal(t, "2s", c.Languages["sh"].Limits.TimeLimit.String())
}

func TestGenerateScript(t *testing.T) {
	c, _ := newTestCompiler(t)
	cpp := c.Languages["cpp"]

	script, err := cpp.GenerateScript(
		[]string{"header.h", "entry.cpp", "solution.cpp"},
		"binary",
		[]string{"-Wall"},
		map[string]interface{}{"std": "c++17"},
	)
	require.NoError(t, err)
	require.Contains(t, string(script), "g++ -std=c++17 -O2 -DONLINE_JUDGE -o binary entry.cpp solution.cpp -Wall -lm")

	_, err = cpp.GenerateScript([]string{"header.h"}, "binary", nil, nil)
	require.Error(t, err)
}

func TestCompileCached(t *testing.T) {
	c, factory := newTestCompiler(t)
	request := &Request{
		Language: "sh",
		Sources:  []Source{{Name: "interactor.sh", Content: []byte("#!/bin/sh\necho 42\n")}},
	}

	artifact, release, err := c.Compile(context.Background(), request)
	require.NoError(t, err)
	out, err := exec.Command(artifact.Path).Output()
	require.NoError(t, err)
	require.Equal(t, "42\n", string(out))
	release()

	again, release, err := c.Compile(context.Background(), request)
	require.NoError(t, err)
	defer release()
	require.Equal(t, artifact.Path, again.Path)
	require.Equal(t, int64(1), factory.created.Load())

	other := *request
	other.Flags = []string{"-x"}
	_, otherRelease, err := c.Compile(context.Background(), &other)
	require.NoError(t, err)
	otherRelease()
	require.Equal(t, int64(2), factory.created.Load())
}

func TestShellWithoutInterpreterLine(t *testing.T) {
	c, _ := newTestCompiler(t)
	artifact, release, err := c.Compile(context.Background(), &Request{
		Language: "sh",
		Sources:  []Source{{Name: "solution.sh", Content: []byte("read x\necho \"got $x\"\n")}},
	})
	require.NoError(t, err)
	defer release()

	cmd := exec.Command(artifact.Path)
	cmd.Stdin = strings.NewReader("7\n")
	out, err := cmd.Output()
	require.NoError(t, err)
	require.Equal(t, "got 7\n", string(out))
}

func TestCompileError(t *testing.T) {
	c, factory := newTestCompiler(t)
	request := &Request{
		Language: "sh",
		Sources:  []Source{{Name: "broken.sh", Content: []byte("if then fi (\n")}},
	}

	for range 2 {
		_, release, err := c.Compile(context.Background(), request)
		release()
		var compileErr *CompileError
		require.True(t, errors.As(err, &compileErr))
		require.NotEmpty(t, compileErr.Log)
	}
	require.Equal(t, int64(1), factory.created.Load())
}

func TestUnknownLanguage(t *testing.T) {
	c, _ := newTestCompiler(t)
	_, release, err := c.Compile(context.Background(), &Request{Language: "pascal"})
	release()
	require.Error(t, err)
}

func TestCompileCpp(t *testing.T) {
	if _, err := exec.LookPath("g++"); err != nil {
		t.Skip("g++ is not available")
	}
	c, _ := newTestCompiler(t)
	artifact, release, err := c.Compile(context.Background(), &Request{
		Language: "cpp",
		Sources: []Source{
			{Name: "add.h", Content: []byte("int add(int a, int b);\n")},
			{Name: "add.cpp", Content: []byte("#include \"add.h\"\nint add(int a, int b) { return a + b; }\n")},
			{Name: "main.cpp", Content: []byte("#include <cstdio>\n#include \"add.h\"\nint main() { printf(\"%d\\n\", add(2, 3)); }\n")},
		},
	})
	require.NoError(t, err)
	defer release()

	out, err := exec.Command(artifact.Path).Output()
	require.NoError(t, err)
	require.Equal(t, "5\n", string(out))

	_, err = os.Stat(artifact.Path)
	require.NoError(t, err)
}
