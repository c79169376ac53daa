// Package config loads engine settings from a CUE, JSON or YAML file
// unified against the embedded #Config schema.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/roach88/nudge/internal/rules"
	"github.com/roach88/nudge/internal/timeline"
)

//go:embed schema.cue
var schemaCUE string

// Config is the resolved engine configuration.
type Config struct {
	Location      *time.Location
	PollInterval  time.Duration
	PollCooldown  time.Duration
	Horizon       time.Duration
	EvalInterval  time.Duration
	ScannerPolicy timeline.Policy
	Rules         rules.Settings
	ChartURL      string
	AdvisoryAddr  string
	StorePath     string
}

type rawWindow struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type rawRule struct {
	Enabled bool       `json:"enabled"`
	Cadence string     `json:"cadence"`
	Window  *rawWindow `json:"window,omitempty"`
}

type rawConfig struct {
	Timezone string `json:"timezone"`
	Poller   struct {
		Interval    string `json:"interval"`
		Cooldown    string `json:"cooldown"`
		HorizonDays int    `json:"horizonDays"`
	} `json:"poller"`
	Evaluator struct {
		Interval string `json:"interval"`
	} `json:"evaluator"`
	Scanner struct {
		Policy string `json:"policy"`
	} `json:"scanner"`
	Rules map[string]rawRule `json:"rules"`
	Chart struct {
		URL string `json:"url"`
	} `json:"chart"`
	Advisory struct {
		Addr string `json:"addr"`
	} `json:"advisory"`
	Store struct {
		Path string `json:"path"`
	} `json:"store"`
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse("defaults.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema defaults invalid: %v", err))
	}
	return cfg
}

// Load reads and resolves the file at path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse resolves config source. The filename extension selects YAML
// (.yaml, .yml); anything else is compiled as CUE, which accepts JSON.
func Parse(filename string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	var user cue.Value
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		f, err := cueyaml.Extract(filename, data)
		if err != nil {
			return Config{}, formatCUEError(err)
		}
		user = ctx.BuildFile(f)
	default:
		user = ctx.CompileBytes(data, cue.Filename(filename))
	}
	if err := user.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	var raw rawConfig
	if err := v.Decode(&raw); err != nil {
		return Config{}, formatCUEError(err)
	}
	return resolve(v, raw)
}

func resolve(v cue.Value, raw rawConfig) (Config, error) {
	cfg := Config{
		Horizon:      time.Duration(raw.Poller.HorizonDays) * 24 * time.Hour,
		ChartURL:     raw.Chart.URL,
		AdvisoryAddr: raw.Advisory.Addr,
		StorePath:    raw.Store.Path,
	}

	var err error
	if cfg.Location, err = LoadLocation(raw.Timezone); err != nil {
		return Config{}, fieldError(v, "timezone", err)
	}
	if cfg.PollInterval, err = duration(v, "poller.interval", raw.Poller.Interval); err != nil {
		return Config{}, err
	}
	if cfg.PollCooldown, err = duration(v, "poller.cooldown", raw.Poller.Cooldown); err != nil {
		return Config{}, err
	}
	if cfg.EvalInterval, err = duration(v, "evaluator.interval", raw.Evaluator.Interval); err != nil {
		return Config{}, err
	}
	if cfg.ScannerPolicy, err = timeline.ParsePolicy(raw.Scanner.Policy); err != nil {
		return Config{}, fieldError(v, "scanner.policy", err)
	}

	cfg.Rules = rules.DefaultSettings()
	for name, r := range raw.Rules {
		set := cfg.Rules.Get(name)
		set.Enabled = r.Enabled
		if set.Cadence, err = duration(v, "rules."+name+".cadence", r.Cadence); err != nil {
			return Config{}, err
		}
		if r.Window != nil {
			set.Window = rules.Window{From: r.Window.From, To: r.Window.To}
		}
		cfg.Rules[name] = set
	}
	return cfg, nil
}

// LoadLocation resolves an IANA zone name. "Local" and "" mean time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func duration(v cue.Value, path, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fieldError(v, path, err)
	}
	if d <= 0 {
		return 0, fieldError(v, path, fmt.Errorf("must be positive, got %s", s))
	}
	return d, nil
}

// CompileError is a configuration error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldError(v cue.Value, path string, err error) error {
	return &CompileError{
		Field:   path,
		Message: err.Error(),
		Pos:     v.LookupPath(cue.ParsePath(path)).Pos(),
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = cue.MakePath(selectors(path)...).String()
	}
	msg, args := first.Msg()
	return &CompileError{
		Field:   field,
		Message: fmt.Sprintf(msg, args...),
		Pos:     firstPos(first),
	}
}

func selectors(path []string) []cue.Selector {
	sels := make([]cue.Selector, 0, len(path))
	for _, p := range path {
		if len(p) > 0 && p[0] == '#' {
			sels = append(sels, cue.Def(p))
			continue
		}
		sels = append(sels, cue.Str(p))
	}
	return sels
}

// firstPos prefers a position in the user's file over one in the schema.
func firstPos(err errors.Error) token.Pos {
	positions := errors.Positions(err)
	for _, p := range positions {
		if p.Filename() != "schema.cue" {
			return p
		}
	}
	if len(positions) > 0 {
		return positions[0]
	}
	return token.NoPos
}
