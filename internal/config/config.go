package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"multicarrier-planner/internal/compile"
	"multicarrier-planner/internal/data"
	"multicarrier-planner/internal/generate"
	"multicarrier-planner/internal/hierarchy"
	"multicarrier-planner/internal/logging"
	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/params"
	"multicarrier-planner/internal/solver"
	"multicarrier-planner/internal/validate"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Scenario is a directory of CSV sheets or a JSON scenario file.
	Scenario string `yaml:"scenario"`
	// Optional: load scalar rows from a separate YAML file.
	// Inline Scalars override rows of ScalarsFile with the same key, and
	// both override the scenario's own scalar table.
	ScalarsFile string            `yaml:"scalars_file"`
	Scalars     []model.ScalarRow `yaml:"scalars"`

	Solver    SolverConfig       `yaml:"solver"`
	Tolerance validate.Tolerance `yaml:"tolerance"`

	// DemandLevels maps a carrier to its demand aggregation level
	// (node, region, macro_region, country, system).
	DemandLevels map[string]string `yaml:"demand_levels"`
	DeficitClass string            `yaml:"deficit_class"`
	SurplusClass string            `yaml:"surplus_class"`
	// Parallel generates constraint families concurrently. Defaults to true.
	Parallel *bool `yaml:"parallel"`

	Logging logging.Config `yaml:"logging"`
	// RunLog is the SQLite file runs are recorded in; empty disables it.
	RunLog string `yaml:"runlog"`
}

type SolverConfig struct {
	Name      string        `yaml:"name"`
	Binary    string        `yaml:"binary"`
	TimeLimit time.Duration `yaml:"time_limit"`
	MIPGap    float64       `yaml:"mip_gap"`
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not validate it.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	c.Scenario = resolve(dir, c.Scenario)
	c.RunLog = resolve(dir, c.RunLog)
	if c.ScalarsFile != "" {
		loaded, err := loadScalarsFile(resolve(dir, c.ScalarsFile))
		if err != nil {
			return nil, err
		}
		c.Scalars = params.Merge(loaded, c.Scalars)
	}
	return &c, nil
}

// resolve interprets a relative path against the config file directory,
// falling back to the path as given (relative to cwd) if that doesn't exist.
func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	cand := filepath.Join(dir, p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

type scalarsFileWrapper struct {
	Scalars []model.ScalarRow `yaml:"scalars"`
}

func loadScalarsFile(path string) ([]model.ScalarRow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w scalarsFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w.Scalars, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Scenario == "" {
		return errors.New("scenario is required")
	}
	if _, err := c.GenerateOptions(); err != nil {
		return err
	}
	if _, err := solver.New(c.Solver.Name, c.Solver.Binary); err != nil {
		return fmt.Errorf("solver.name: %w", err)
	}
	if c.Solver.TimeLimit < 0 {
		return errors.New("solver.time_limit must be >= 0")
	}
	if c.Solver.MIPGap < 0 || c.Solver.MIPGap >= 1 {
		return errors.New("solver.mip_gap must be within [0,1)")
	}
	t := c.Tolerance
	if t.MassBalance < 0 || t.Binary < 0 || t.Feasibility < 0 {
		return errors.New("tolerance values must be >= 0")
	}
	for _, r := range c.Scalars {
		if strings.TrimSpace(r.Name) == "" {
			return errors.New("scalars: name is required")
		}
	}
	return nil
}

// GenerateOptions translates the generation settings.
func (c *Config) GenerateOptions() (generate.Options, error) {
	opts := generate.Options{
		DeficitClass: c.DeficitClass,
		SurplusClass: c.SurplusClass,
		Sequential:   c.Parallel != nil && !*c.Parallel,
	}
	if len(c.DemandLevels) > 0 {
		opts.DemandLevels = make(map[model.Carrier]hierarchy.Level, len(c.DemandLevels))
		for e, l := range c.DemandLevels {
			lvl, err := hierarchy.ParseLevel(l)
			if err != nil {
				return generate.Options{}, fmt.Errorf("demand_levels.%s: %w", e, err)
			}
			opts.DemandLevels[model.NormalizeCarrier(e)] = lvl
		}
	}
	return opts, nil
}

// Options returns the full run options. Call after Validate.
func (c *Config) Options() compile.Options {
	gen, _ := c.GenerateOptions()
	return compile.Options{
		Generate:  gen,
		Solver:    solver.Options{TimeLimit: c.Solver.TimeLimit, MIPGap: c.Solver.MIPGap},
		Tolerance: c.Tolerance,
	}
}

// NewSolver builds the configured solver.
func (c *Config) NewSolver() (solver.Solver, error) {
	return solver.New(c.Solver.Name, c.Solver.Binary)
}

// Tables loads the scenario and overlays the configured scalar rows.
func (c *Config) Tables() (model.Tables, []string, error) {
	t, warnings, err := data.Load(c.Scenario)
	if err != nil {
		return model.Tables{}, nil, fmt.Errorf("load scenario: %w", err)
	}
	if len(c.Scalars) > 0 {
		t.Scalars = params.Merge(t.Scalars, c.Scalars)
	}
	return t, warnings, nil
}
