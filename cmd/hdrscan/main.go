package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/gobwas/glob"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/fwessels/hdrscan"
	"github.com/fwessels/hdrscan/internal/cexpr"
)

func newApp(stdout, stderr io.Writer, fs afero.Fs) *cli.App {
	app := cli.NewApp()
	app.Name = "hdrscan"
	app.Usage = "Decide conditional compilation in trees of C and C++ headers"
	app.ArgsUsage = "<dir-or-header>..."
	app.Writer = stdout
	app.ErrWriter = stderr
	app.DisableSliceFlagSeparator = true

	app.Flags = []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "define",
			Aliases: []string{"D"},
			Usage:   "Treat macro as defined, as NAME or NAME=VALUE",
		},
		&cli.StringSliceFlag{
			Name:    "undef",
			Aliases: []string{"U"},
			Usage:   "Treat macro as not defined",
		},
		&cli.StringSliceFlag{
			Name:    "quantum",
			Aliases: []string{"Q"},
			Usage:   "Leave macro unknown, overriding the profile",
		},
		&cli.StringFlag{
			Name:  "profile",
			Usage: "YAML file with defined, undefined and quantum macros",
		},
		&cli.StringSliceFlag{
			Name:    "include",
			Aliases: []string{"I"},
			Usage:   "Directory searched for included headers",
		},
		&cli.StringSliceFlag{
			Name:  "pattern",
			Value: cli.NewStringSlice("*.h", "*.hpp", "*.hh"),
			Usage: "Glob selecting header file names",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "Glob of file or directory names to skip",
		},
		&cli.BoolFlag{
			Name:  "follow-includes",
			Usage: "Analyze included headers with the including file's macros",
		},
		&cli.BoolFlag{
			Name:  "dump",
			Usage: "Print every condition and include with its outcome",
		},
		&cli.IntFlag{
			Name:  "cache-size",
			Value: hdrscan.DefaultExprCacheSize,
			Usage: "Number of parsed conditions to cache",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Exit with status 1 when any header fails",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "warning",
			Usage: "One of panic, fatal, error, warning, info, debug, trace",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Same as --log-level debug",
		},
	}
	app.Action = func(c *cli.Context) error {
		return run(c, fs)
	}
	return app
}

func newLogger(c *cli.Context) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(c.App.ErrWriter)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	if c.Bool("verbose") {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", p)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// collect lists the headers under roots in walk order. Roots naming a file
// are taken as is.
func collect(fs afero.Fs, roots []string, include, exclude []glob.Glob) ([]string, error) {
	var files []string
	for _, root := range roots {
		st, err := fs.Stat(root)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			files = append(files, root)
			continue
		}
		err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			name := filepath.Base(path)
			if path != root && matchAny(exclude, name) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !info.IsDir() && matchAny(include, name) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func run(c *cli.Context, fs afero.Fs) error {
	if c.NArg() == 0 {
		return errors.New("no headers or directories given")
	}
	log, err := newLogger(c)
	if err != nil {
		return err
	}
	env, err := buildEnv(c, fs)
	if err != nil {
		return err
	}
	include, err := compileGlobs(c.StringSlice("pattern"))
	if err != nil {
		return err
	}
	exclude, err := compileGlobs(c.StringSlice("exclude"))
	if err != nil {
		return err
	}
	files, err := collect(fs, c.Args().Slice(), include, exclude)
	if err != nil {
		return err
	}
	log.WithField("headers", len(files)).Debug("collected")

	p, err := hdrscan.New(hdrscan.Config{Logger: log, ExprCacheSize: c.Int("cache-size")})
	if err != nil {
		return err
	}

	var sum summary
	var failures error
	for _, path := range files {
		// Each header starts from the configured knowledge; definitions
		// made by one header do not leak into the next.
		a := hdrscan.NewAnalyzer(p, fs, env.Clone())
		a.IncludeDirs = c.StringSlice("include")
		a.FollowIncludes = c.Bool("follow-includes")

		r, err := a.AnalyzeFile(path)
		if err != nil {
			log.WithError(err).WithField("file", path).Error("analysis failed")
			failures = multierr.Append(failures, err)
			sum.failed++
			continue
		}
		if err := r.IncludeErrors(); err != nil {
			for _, e := range multierr.Errors(err) {
				log.WithError(e).WithField("file", path).Warn("included header failed")
			}
		}
		if c.Bool("dump") {
			dump(c.App.Writer, r)
		}
		sum.add(r)
	}
	sum.cacheHits, sum.cacheMisses = p.CacheStats()
	sum.render(c.App.Writer)

	if failures != nil && c.Bool("strict") {
		return errors.Errorf("%d of %d headers failed", sum.failed, len(files))
	}
	return nil
}

func dump(w io.Writer, r *hdrscan.Report) {
	r.Walk(func(r *hdrscan.Report) {
		for _, cond := range r.Conditions {
			fmt.Fprintf(w, "%s:%d: #%s %s => %s\n", r.File, cond.Line, cond.Directive, cond.Text, cond.Value)
		}
		for _, inc := range r.Includes {
			target := inc.Path
			switch {
			case inc.Cycle:
				target += " (cycle)"
			case target == "":
				target = "(not followed)"
			}
			fmt.Fprintf(w, "%s:%d: #include %s => %s\n", r.File, inc.Line, inc.Name, target)
		}
	})
}

type summary struct {
	files, included, failed int
	bytes                   uint64
	nodes                   int
	directives              map[string]int
	conditions              map[cexpr.Ternary]int
	tokens                  map[cexpr.Ternary]int
	includes, resolved      int
	cacheHits, cacheMisses  uint64
}

func (s *summary) add(top *hdrscan.Report) {
	if s.directives == nil {
		s.directives = map[string]int{}
		s.conditions = map[cexpr.Ternary]int{}
		s.tokens = map[cexpr.Ternary]int{}
	}
	s.files++
	top.Walk(func(r *hdrscan.Report) {
		if r != top {
			s.included++
		}
		s.bytes += uint64(r.Size)
		s.nodes += r.Nodes
		for k, v := range r.Directives {
			s.directives[k] += v
		}
		for k, v := range r.Outcomes() {
			s.conditions[k] += v
		}
		for k, v := range r.Tokens {
			s.tokens[k] += v
		}
		for _, inc := range r.Includes {
			s.includes++
			if inc.Path != "" {
				s.resolved++
			}
		}
	})
}

func count(n int) string { return humanize.Comma(int64(n)) }

func (s *summary) render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{"headers", count(s.files)})
	table.Append([]string{"included headers", count(s.included)})
	table.Append([]string{"failed", count(s.failed)})
	table.Append([]string{"size", humanize.Bytes(s.bytes)})
	table.Append([]string{"nodes", count(s.nodes)})

	names := make([]string, 0, len(s.directives))
	for name := range s.directives {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table.Append([]string{"#" + name, count(s.directives[name])})
	}
	for _, v := range []cexpr.Ternary{cexpr.True, cexpr.False, cexpr.Unknown} {
		table.Append([]string{"conditions " + v.String(), count(s.conditions[v])})
	}
	for _, v := range []cexpr.Ternary{cexpr.True, cexpr.False, cexpr.Unknown} {
		table.Append([]string{"tokens in " + v.String() + " code", count(s.tokens[v])})
	}
	table.Append([]string{"includes resolved", fmt.Sprintf("%s of %s", count(s.resolved), count(s.includes))})
	table.Append([]string{"expression cache hits", humanize.Comma(int64(s.cacheHits))})
	table.Append([]string{"expression cache misses", humanize.Comma(int64(s.cacheMisses))})
	table.Render()
}

func main() {
	app := newApp(os.Stdout, os.Stderr, afero.NewOsFs())
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
