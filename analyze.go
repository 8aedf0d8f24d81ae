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
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/fwessels/hdrscan/internal/cexpr"
	"github.com/fwessels/hdrscan/internal/preprocessor"
)

// Condition is the outcome of one #if, #elif, #ifdef or #ifndef.
type Condition struct {
	Line      int
	Directive string
	Text      string
	Value     cexpr.Ternary
	// Region is whether the directive itself sits in compiled code.
	Region cexpr.Ternary
}

// IncludeRef is one #include seen during analysis. Path is empty when the
// file could not be found.
type IncludeRef struct {
	Line   int
	Name   string
	Quoted bool
	Region cexpr.Ternary
	Path   string
	Cycle  bool
	Err    error
}

// Report summarizes the analysis of one header.
type Report struct {
	File       string
	Size       int
	Nodes      int
	Directives map[string]int
	Conditions []Condition
	// Tokens counts plain tokens by the region they appear in.
	Tokens   map[cexpr.Ternary]int
	Includes []IncludeRef
	Included []*Report
}

func newReport(file string, size int) *Report {
	return &Report{
		File:       file,
		Size:       size,
		Directives: map[string]int{},
		Tokens:     map[cexpr.Ternary]int{},
	}
}

// Outcomes counts the conditions by value.
func (r *Report) Outcomes() map[cexpr.Ternary]int {
	m := map[cexpr.Ternary]int{}
	for _, c := range r.Conditions {
		m[c.Value]++
	}
	return m
}

// IncludeErrors combines the failures of all included files, recursively.
func (r *Report) IncludeErrors() error {
	var err error
	for _, ref := range r.Includes {
		err = multierr.Append(err, ref.Err)
	}
	for _, sub := range r.Included {
		err = multierr.Append(err, sub.IncludeErrors())
	}
	return err
}

// Walk calls fn for r and every report of an included file, depth first.
func (r *Report) Walk(fn func(*Report)) {
	fn(r)
	for _, sub := range r.Included {
		sub.Walk(fn)
	}
}

// Analyzer runs headers through a Pipeline while tracking macro knowledge
// and the conditional stack. Env is read by every condition and updated by
// #define and #undef in regions that may be compiled.
type Analyzer struct {
	*Pipeline
	Fs             afero.Fs
	IncludeDirs    []string
	FollowIncludes bool
	Env            cexpr.Env

	visiting map[string]bool
}

func NewAnalyzer(p *Pipeline, fs afero.Fs, env cexpr.Env) *Analyzer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if env == nil {
		env = cexpr.Env{}
	}
	return &Analyzer{Pipeline: p, Fs: fs, Env: env}
}

// AnalyzeFile reads and analyzes the header at path.
func (a *Analyzer) AnalyzeFile(path string) (*Report, error) {
	b, err := afero.ReadFile(a.Fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return a.Analyze(path, string(b))
}

// Analyze analyzes src. name is used in messages and to resolve quoted
// includes.
func (a *Analyzer) Analyze(name, src string) (*Report, error) {
	if a.Env == nil {
		a.Env = cexpr.Env{}
	}
	if a.visiting == nil {
		a.visiting = map[string]bool{}
	}
	key := filepath.Clean(name)
	a.visiting[key] = true
	defer delete(a.visiting, key)

	nodes, err := a.Parse(name, src)
	if err != nil {
		return nil, err
	}
	r := newReport(name, len(src))
	r.Nodes = len(nodes)
	s := &scan{Analyzer: a, report: r, src: src, log: a.log.WithField("file", name)}
	for _, n := range nodes {
		if err := s.node(n); err != nil {
			return r, err
		}
	}
	if s.cond.Depth() != 0 {
		return r, errors.Errorf("%s:%d: unterminated conditional", name, s.cond.UnclosedLine())
	}
	return r, nil
}

// scan is the state of one Analyze call.
type scan struct {
	*Analyzer
	report *Report
	src    string
	log    logrus.FieldLogger
	cond   preprocessor.CondStack

	// line and offset remember the last position converted to a line.
	line, offset int
}

func (s *scan) lineOf(offset int) int {
	if offset < s.offset {
		s.line, s.offset = 1, 0
	}
	if s.line == 0 {
		s.line = 1
	}
	s.line += strings.Count(s.src[s.offset:offset], "\n")
	s.offset = offset
	return s.line
}

func directiveName(n preprocessor.Node) string {
	switch n := n.(type) {
	case *preprocessor.Include:
		return "include"
	case *preprocessor.Ifdef:
		if n.Negated {
			return "ifndef"
		}
		return "ifdef"
	case *preprocessor.If:
		return "if"
	case *preprocessor.Elif:
		return "elif"
	case *preprocessor.Else:
		return "else"
	case *preprocessor.Endif:
		return "endif"
	case *preprocessor.Define, *preprocessor.DefineFunc:
		return "define"
	case *preprocessor.Directive:
		return n.Name
	}
	return ""
}

func definedness(s cexpr.DefineState) cexpr.Ternary {
	switch s.Kind {
	case cexpr.StateDefined:
		return cexpr.True
	case cexpr.StateNotDefined:
		return cexpr.False
	}
	return cexpr.Unknown
}

func (s *scan) node(n preprocessor.Node) error {
	if p, ok := n.(*preprocessor.Plain); ok {
		if p.Tok.Kind != preprocessor.NewlineOrComment {
			s.report.Tokens[s.cond.Active()]++
		}
		return nil
	}

	name := directiveName(n)
	s.report.Directives[name]++
	line := s.lineOf(n.Token().Start)
	region := s.cond.Active()
	fail := func(err error) error {
		return errors.Wrapf(err, "%s:%d", s.report.File, line)
	}
	record := func(text string, v cexpr.Ternary) {
		s.report.Conditions = append(s.report.Conditions, Condition{
			Line: line, Directive: name, Text: text, Value: v, Region: region,
		})
	}

	switch n := n.(type) {
	case *preprocessor.Ifdef:
		v := definedness(s.Env.Lookup(n.Name))
		if n.Negated {
			v = cexpr.Not(v)
		}
		record(n.Name, v)
		s.cond.Push(v, line)
	case *preprocessor.If:
		v := cexpr.Eval(n.Expr, s.Env)
		record(n.Expr.String(), v)
		s.cond.Push(v, line)
	case *preprocessor.Elif:
		v := cexpr.Eval(n.Expr, s.Env)
		record(n.Expr.String(), v)
		if err := s.cond.Elif(v); err != nil {
			return fail(err)
		}
	case *preprocessor.Else:
		if err := s.cond.Else(); err != nil {
			return fail(err)
		}
	case *preprocessor.Endif:
		if err := s.cond.Pop(); err != nil {
			return fail(err)
		}
	case *preprocessor.Define:
		s.define(region, n.Name, cexpr.DefinedAs(preprocessor.JoinTokens(s.src, n.Body)))
	case *preprocessor.DefineFunc:
		s.define(region, n.Name, cexpr.DefinedAs(""))
	case *preprocessor.Directive:
		if n.Name == "undef" && len(n.Tokens) > 0 && n.Tokens[0].Kind == preprocessor.Ident {
			s.define(region, n.Tokens[0].Text(s.src), cexpr.Undefined())
		}
	case *preprocessor.Include:
		s.include(n, line, region)
	}
	return nil
}

// define records what a #define or #undef does. In a region that may or may
// not be compiled the macro can be either way afterwards.
func (s *scan) define(region cexpr.Ternary, name string, state cexpr.DefineState) {
	switch region {
	case cexpr.True:
		s.Env[name] = state
	case cexpr.Unknown:
		s.Env.Forget(name)
	}
}

func (s *scan) include(n *preprocessor.Include, line int, region cexpr.Ternary) {
	ref := IncludeRef{Line: line, Name: n.Filename, Quoted: n.Quoted, Region: region}
	defer func() { s.report.Includes = append(s.report.Includes, ref) }()

	if region == cexpr.False || !s.FollowIncludes {
		return
	}
	path, err := s.resolve(n.Filename, s.report.File, n.Quoted)
	if err != nil {
		s.log.WithField("include", n.Filename).Debug(err)
		return
	}
	ref.Path = path
	if s.visiting[filepath.Clean(path)] {
		ref.Cycle = true
		s.log.WithField("include", path).Debug("include cycle")
		return
	}
	sub, err := s.AnalyzeFile(path)
	if err != nil {
		ref.Err = err
		s.log.WithError(err).WithField("include", path).Warn("included header failed")
	}
	if sub != nil {
		s.report.Included = append(s.report.Included, sub)
	}
}

// resolve finds an included file. Quoted names are looked up next to the
// including file first, then in the include directories.
func (a *Analyzer) resolve(name, includer string, quoted bool) (string, error) {
	if filepath.IsAbs(name) {
		if a.isFile(name) {
			return filepath.Clean(name), nil
		}
		return "", errors.Wrapf(os.ErrNotExist, "include %q", name)
	}
	if quoted && includer != "" {
		cand := filepath.Join(filepath.Dir(includer), name)
		if a.isFile(cand) {
			return cand, nil
		}
	}
	for _, dir := range a.IncludeDirs {
		cand := filepath.Join(dir, name)
		if a.isFile(cand) {
			return cand, nil
		}
	}
	return "", errors.Errorf("cannot resolve include %q", name)
}

func (a *Analyzer) isFile(p string) bool {
	st, err := a.Fs.Stat(p)
	return err == nil && !st.IsDir()
}
