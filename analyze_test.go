/*
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package hdrscan

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwessels/hdrscan/internal/cexpr"
)

func lines(a ...string) string {
	return strings.Join(a, "\n") + "\n"
}

func writeFiles(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func values(r *Report) []cexpr.Ternary {
	var out []cexpr.Ternary
	for _, c := range r.Conditions {
		out = append(out, c.Value)
	}
	return out
}

func TestAnalyzeAppliesDefines(t *testing.T) {
	a := NewAnalyzer(newPipeline(t), afero.NewMemMapFs(), nil)
	r, err := a.Analyze("h.h", lines(
		"#define WINVER 0x0A00",
		"#if WINVER >= 0x0600",
		"int modern;",
		"#else",
		"int legacy;",
		"#endif",
		"#undef WINVER",
		"#if WINVER",
		"#endif",
		"#ifdef WINVER",
		"#endif",
	))
	require.NoError(t, err)
	assert.Equal(t, []cexpr.Ternary{cexpr.True, cexpr.False, cexpr.False}, values(r))
	assert.Equal(t, 3, r.Tokens[cexpr.True])
	assert.Equal(t, 3, r.Tokens[cexpr.False])
	assert.Equal(t, cexpr.Undefined(), a.Env.Lookup("WINVER"))
	assert.Equal(t, map[string]int{"define": 1, "if": 2, "else": 1, "endif": 3, "undef": 1, "ifdef": 1}, r.Directives)
}

func TestAnalyzeUnknownRegion(t *testing.T) {
	env := cexpr.Env{"DONE": cexpr.Undefined(), "SKIPPED": cexpr.Undefined()}
	a := NewAnalyzer(newPipeline(t), afero.NewMemMapFs(), env)
	r, err := a.Analyze("h.h", lines(
		"#ifndef GUARD",
		"#define GUARD",
		"#define DONE 1",
		"#endif",
		"#if 0",
		"#define SKIPPED 1",
		"#elif FEATURE",
		"#else",
		"#endif",
	))
	require.NoError(t, err)
	assert.Equal(t, []cexpr.Ternary{cexpr.Unknown, cexpr.False, cexpr.Unknown}, values(r))
	assert.Equal(t, cexpr.QuantumState(), env.Lookup("GUARD"))
	assert.Equal(t, cexpr.QuantumState(), env.Lookup("DONE"))
	assert.Equal(t, cexpr.Undefined(), env.Lookup("SKIPPED"))
}

func TestAnalyzeElifIsEvaluated(t *testing.T) {
	a := NewAnalyzer(newPipeline(t), afero.NewMemMapFs(), cexpr.Env{"A": cexpr.DefinedAs("2")})
	r, err := a.Analyze("h.h", lines(
		"#if A == 1",
		"one",
		"#elif A == 2",
		"two",
		"#else",
		"other",
		"#endif",
	))
	require.NoError(t, err)
	assert.Equal(t, []cexpr.Ternary{cexpr.False, cexpr.True}, values(r))
	assert.Equal(t, 1, r.Tokens[cexpr.True])
	assert.Equal(t, 2, r.Tokens[cexpr.False])
	assert.Equal(t, "(A == 2)", r.Conditions[1].Text)
	assert.Equal(t, 3, r.Conditions[1].Line)
}

func TestAnalyzeConditionalErrors(t *testing.T) {
	for input, want := range map[string]string{
		"#endif\n":              "h.h:1: #endif without #if",
		"#else\n":               "h.h:1: #else without #if",
		"x\n#elif 1\n":          "h.h:2: #elif without #if",
		"#if 1\n#else\n#else\n": "h.h:3: #else after #else",
		"\n#ifdef A\n":          "h.h:2: unterminated conditional",
	} {
		a := NewAnalyzer(newPipeline(t), afero.NewMemMapFs(), nil)
		_, err := a.Analyze("h.h", input)
		if assert.Error(t, err, input) {
			assert.Equal(t, want, err.Error())
		}
	}
}

func TestAnalyzeFollowsIncludes(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/sdk/um/windows.h": lines(
			`#include "winver.h"`,
			"#include <sdkddkver.h>",
			"#include <missing.h>",
			"#if WINVER >= 0x0600",
			"#endif",
		),
		"/sdk/um/winver.h":        "#define WINVER 0x0A00\n",
		"/sdk/shared/sdkddkver.h": "#define NTDDI_VERSION 1\n",
	})
	a := NewAnalyzer(newPipeline(t), fs, nil)
	a.IncludeDirs = []string{"/sdk/shared"}
	a.FollowIncludes = true

	r, err := a.AnalyzeFile("/sdk/um/windows.h")
	require.NoError(t, err)
	require.Len(t, r.Includes, 3)
	assert.Equal(t, "/sdk/um/winver.h", r.Includes[0].Path)
	assert.Equal(t, "/sdk/shared/sdkddkver.h", r.Includes[1].Path)
	assert.Equal(t, "", r.Includes[2].Path)
	require.Len(t, r.Included, 2)
	assert.Equal(t, []cexpr.Ternary{cexpr.True}, values(r))
	assert.Equal(t, cexpr.DefinedAs("1"), a.Env.Lookup("NTDDI_VERSION"))
	assert.NoError(t, r.IncludeErrors())

	var files []string
	r.Walk(func(r *Report) { files = append(files, r.File) })
	assert.Equal(t, []string{"/sdk/um/windows.h", "/sdk/um/winver.h", "/sdk/shared/sdkddkver.h"}, files)
}

func TestAnalyzeIncludeCycle(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/inc/a.h": `#include "b.h"` + "\n",
		"/inc/b.h": `#include "a.h"` + "\n",
	})
	a := NewAnalyzer(newPipeline(t), fs, nil)
	a.FollowIncludes = true
	r, err := a.AnalyzeFile("/inc/a.h")
	require.NoError(t, err)
	require.Len(t, r.Included, 1)
	b := r.Included[0]
	require.Len(t, b.Includes, 1)
	assert.True(t, b.Includes[0].Cycle)
	assert.Empty(t, b.Included)
}

func TestAnalyzeIsolatesIncludedFailures(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/inc/top.h":    lines(`#include "broken.h"`, "#define AFTER 1"),
		"/inc/broken.h": "#bogus\n",
	})
	a := NewAnalyzer(newPipeline(t), fs, nil)
	a.FollowIncludes = true
	r, err := a.AnalyzeFile("/inc/top.h")
	require.NoError(t, err)
	assert.EqualError(t, r.IncludeErrors(), "/inc/broken.h(1:2) unknown directive #bogus")
	assert.Equal(t, cexpr.DefinedAs("1"), a.Env.Lookup("AFTER"))
}

func TestAnalyzeSkipsIncludesInFalseRegions(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/inc/top.h":   lines("#if 0", `#include "other.h"`, "#endif"),
		"/inc/other.h": "#define OTHER\n",
	})
	a := NewAnalyzer(newPipeline(t), fs, nil)
	a.FollowIncludes = true
	r, err := a.AnalyzeFile("/inc/top.h")
	require.NoError(t, err)
	require.Len(t, r.Includes, 1)
	assert.Equal(t, cexpr.False, r.Includes[0].Region)
	assert.Empty(t, r.Included)
}

func TestAnalyzeFileMissing(t *testing.T) {
	a := NewAnalyzer(newPipeline(t), afero.NewMemMapFs(), nil)
	_, err := a.AnalyzeFile("/nope.h")
	assert.Error(t, err)
}
