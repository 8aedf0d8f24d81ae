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

// Package hdrscan reads C and C++ headers without a compiler. It splits a
// header into directives and code and decides #if conditions as true,
// false or unknown from partial knowledge of the macros involved.
package hdrscan

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fwessels/hdrscan/internal/cexpr"
	"github.com/fwessels/hdrscan/internal/preprocessor"
)

const DefaultExprCacheSize = 4096

type Config struct {
	// Logger receives lexer warnings and analysis diagnostics. Defaults to
	// the logrus standard logger.
	Logger logrus.FieldLogger
	// ExprCacheSize bounds the number of parsed conditions kept.
	ExprCacheSize int
	// Grammar overrides the embedded conditional-expression grammar.
	Grammar *cexpr.Grammar
}

type parsed struct {
	x   cexpr.Expr
	err error
}

// Pipeline owns the expression grammar and turns header text into nodes.
// It is safe for concurrent use.
type Pipeline struct {
	grammar *cexpr.Grammar
	log     logrus.FieldLogger
	exprs   *lru.Cache[string, parsed]

	hits, misses atomic.Uint64
}

func New(cfg Config) (*Pipeline, error) {
	g := cfg.Grammar
	if g == nil {
		var err error
		if g, err = cexpr.DefaultGrammar(); err != nil {
			return nil, errors.Wrap(err, "loading expression grammar")
		}
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	size := cfg.ExprCacheSize
	if size <= 0 {
		size = DefaultExprCacheSize
	}
	cache, err := lru.New[string, parsed](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating expression cache")
	}
	return &Pipeline{grammar: g, log: log, exprs: cache}, nil
}

func (p *Pipeline) Grammar() *cexpr.Grammar { return p.grammar }

func (p *Pipeline) Logger() logrus.FieldLogger { return p.log }

// ParseExpr parses the text of a condition. Results, failures included, are
// cached by text since headers repeat the same guards over and over.
func (p *Pipeline) ParseExpr(src string) (cexpr.Expr, error) {
	if r, ok := p.exprs.Get(src); ok {
		p.hits.Add(1)
		return r.x, r.err
	}
	p.misses.Add(1)
	x, err := p.grammar.ParseExpr(src)
	p.exprs.Add(src, parsed{x, err})
	return x, err
}

// CacheStats returns the hit and miss counts of the expression cache.
func (p *Pipeline) CacheStats() (hits, misses uint64) {
	return p.hits.Load(), p.misses.Load()
}

// Parse returns the node stream of one header. filename only prefixes
// error messages.
func (p *Pipeline) Parse(filename, src string) ([]preprocessor.Node, error) {
	lex := preprocessor.NewLexer(preprocessor.NewCursor(filename, src), p.log)
	return preprocessor.NewParser(lex, p).ParseAll()
}

// Eval parses cond and decides it under macros.
func (p *Pipeline) Eval(cond string, macros cexpr.Macros) (cexpr.Ternary, error) {
	x, err := p.ParseExpr(cond)
	if err != nil {
		return cexpr.Unknown, err
	}
	return cexpr.Eval(x, macros), nil
}
