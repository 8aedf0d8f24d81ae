package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/fwessels/hdrscan/internal/cexpr"
	"github.com/fwessels/hdrscan/internal/ctext"
)

// profile is what a target platform is known to define, e.g.
//
//	defined:
//	  _WIN32:
//	  WINVER: 0x0A00
//	  EMPTY: ""
//	undefined: [__cplusplus]
//	quantum: [UNICODE]
//
// A name without a value is defined as 1, like -D NAME.
type profile struct {
	Defined   map[string]*string `yaml:"defined"`
	Undefined []string           `yaml:"undefined"`
	Quantum   []string           `yaml:"quantum"`
}

func loadProfile(fs afero.Fs, path string) (*profile, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "reading profile")
	}
	var p profile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, errors.Wrapf(err, "parsing profile %s", path)
	}
	return &p, nil
}

func (p *profile) apply(env cexpr.Env) error {
	for name, value := range p.Defined {
		if err := checkName(name); err != nil {
			return err
		}
		if value == nil {
			env.Define(name, "1")
		} else {
			env.Define(name, *value)
		}
	}
	for _, name := range p.Undefined {
		if err := checkName(name); err != nil {
			return err
		}
		env.Undef(name)
	}
	for _, name := range p.Quantum {
		if err := checkName(name); err != nil {
			return err
		}
		env.Forget(name)
	}
	return nil
}

// parseDefine splits a -D argument. A bare name is defined as 1, as a C
// compiler does.
func parseDefine(s string) (name, value string) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, "1"
}

func checkName(name string) error {
	if !ctext.IsIdent(name) {
		return errors.Errorf("invalid macro name %q", name)
	}
	return nil
}

// buildEnv combines the profile with the command line. Command line flags
// win over the profile; within the command line -Q wins over -U over -D.
func buildEnv(c *cli.Context, fs afero.Fs) (cexpr.Env, error) {
	env := cexpr.Env{}
	if path := c.String("profile"); path != "" {
		p, err := loadProfile(fs, path)
		if err != nil {
			return nil, err
		}
		if err := p.apply(env); err != nil {
			return nil, errors.Wrapf(err, "profile %s", path)
		}
	}
	flags := profile{Defined: map[string]*string{}}
	for _, d := range c.StringSlice("define") {
		name, value := parseDefine(d)
		flags.Defined[name] = &value
	}
	flags.Undefined = c.StringSlice("undef")
	flags.Quantum = c.StringSlice("quantum")
	if err := flags.apply(env); err != nil {
		return nil, err
	}
	return env, nil
}
