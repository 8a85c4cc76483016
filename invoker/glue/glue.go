// Package glue builds signature graded programs: judge entry and header combined with submission functions.
//
// The submission is compiled as a separate unit which includes the header. Its own main, if any,
// is renamed by a preprocessor define to main_<token>, so that the only entry point is the one of the
// judge entry. The token is generated for every build.
package glue

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"grading_system/invoker/compiler"
	"grading_system/lib/customfields"

	"github.com/google/uuid"
)

const submissionName = "submission"

// standards fixes language standard for every family, whichever variant of the language is requested
var standards = map[string]string{
	"c":   "c11",
	"cpp": "c++17",
}

type Request struct {
	Language   string
	Entry      compiler.Source
	Header     compiler.Source
	Submission []byte
	Flags      []string
	TimeLimit  customfields.Time
}

// NewToken generates rename token from the random source
func NewToken(rand io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(rand)
	if err != nil {
		return "", fmt.Errorf("can not generate rename token, error: %v", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// Standard returns the standard all sources of family are compiled with
func Standard(family string) (string, error) {
	std, ok := standards[family]
	if !ok {
		return "", fmt.Errorf("signature grading is not supported for language family %s", family)
	}
	return std, nil
}

// Rewrite returns sources of the combined program. Entry and header are kept verbatim.
func Rewrite(request *Request, extension string, token string) ([]compiler.Source, error) {
	name := submissionName + extension
	if request.Entry.Name == name || request.Header.Name == name {
		return nil, fmt.Errorf("entry and header can not be named %s", name)
	}
	if request.Entry.Name == request.Header.Name {
		return nil, fmt.Errorf("entry and header have the same name %s", request.Entry.Name)
	}
	if strings.ContainsAny(request.Header.Name, "\"\n/") {
		return nil, fmt.Errorf("invalid header name %q", request.Header.Name)
	}

	var submission strings.Builder
	fmt.Fprintf(&submission, "#include \"%s\"\n", request.Header.Name)
	fmt.Fprintf(&submission, "#define main main_%s\n", token)
	fmt.Fprintf(&submission, "#line 1 \"%s\"\n", name)
	submission.Write(request.Submission)
	if len(request.Submission) > 0 && request.Submission[len(request.Submission)-1] != '\n' {
		submission.WriteByte('\n')
	}
	submission.WriteString("#undef main\n")

	return []compiler.Source{
		request.Header,
		request.Entry,
		{Name: name, Content: []byte(submission.String())},
	}, nil
}

// Build compiles combined program with a fresh token. Release must be called after the binary is copied.
func Build(ctx context.Context, c *compiler.Compiler, request *Request, rand io.Reader) (*compiler.Artifact, func(), error) {
	language, ok := c.Languages[request.Language]
	if !ok {
		return nil, func() {}, fmt.Errorf("language %s does not exist", request.Language)
	}
	std, err := Standard(language.Family)
	if err != nil {
		return nil, func() {}, err
	}
	extension := language.Extension
	if len(extension) == 0 {
		extension = filepath.Ext(request.Entry.Name)
	}

	token, err := NewToken(rand)
	if err != nil {
		return nil, func() {}, err
	}
	sources, err := Rewrite(request, extension, token)
	if err != nil {
		return nil, func() {}, err
	}

	return c.Compile(ctx, &compiler.Request{
		Language:       request.Language,
		Sources:        sources,
		Flags:          request.Flags,
		TimeLimit:      request.TimeLimit,
		TemplateValues: map[string]interface{}{"std": std},
	})
}
