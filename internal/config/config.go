// Package config loads and validates run configurations. A run file is a
// small YAML document describing the coupler problem, the parametrization
// and the solver budget; flags on the CLI override individual fields.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/photonforge/couplerfit/internal/device"
)

// Solver backend names accepted in run configurations.
const (
	SolverSLSQP  = "slsqp"
	SolverMayfly = "mayfly"
)

// Config is a complete run description.
type Config struct {
	// Device / objective setup.
	Wavelengths  []float64 `yaml:"wavelengths" json:"wavelengths"`
	Cells        int       `yaml:"cells" json:"cells"`
	CrossLength  float64   `yaml:"crossLength" json:"crossLength"`
	BarLength    float64   `yaml:"barLength" json:"barLength"`
	Kappa0       float64   `yaml:"kappa0" json:"kappa0"`
	KappaSlope   float64   `yaml:"kappaSlope" json:"kappaSlope"`
	FilterRadius int       `yaml:"filterRadius" json:"filterRadius"`
	Beta         float64   `yaml:"beta" json:"beta"`
	Eta          float64   `yaml:"eta" json:"eta"`

	// Epigraph driver settings.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
	Margin    float64 `yaml:"margin" json:"margin"`

	// Solver settings.
	Solver        string  `yaml:"solver" json:"solver"`
	MaxIterations int     `yaml:"maxIterations" json:"maxIterations"`
	Accuracy      float64 `yaml:"accuracy" json:"accuracy"`
	PopSize       int     `yaml:"popSize" json:"popSize"`
	Seed          int64   `yaml:"seed" json:"seed"`
}

// Default returns the reference configuration matching device.Default.
func Default() Config {
	p := device.Default()
	return Config{
		Wavelengths:   p.Wavelengths,
		Cells:         p.Cells,
		CrossLength:   p.CrossLength,
		BarLength:     p.BarLength,
		Kappa0:        p.Kappa0,
		KappaSlope:    p.KappaSlope,
		FilterRadius:  p.FilterRadius,
		Beta:          p.Beta,
		Eta:           p.Eta,
		Tolerance:     0,
		Margin:        1.05,
		Solver:        SolverSLSQP,
		MaxIterations: 100,
		Accuracy:      1e-8,
		PopSize:       30,
		Seed:          42,
	}
}

// Load reads a YAML run file over the defaults, so partial files work.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the solver section and the embedded problem.
func (c *Config) Validate() error {
	switch c.Solver {
	case SolverSLSQP, SolverMayfly:
	default:
		return fmt.Errorf("config: unknown solver %q", c.Solver)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("config: maxIterations %d, must be positive", c.MaxIterations)
	}
	if c.Accuracy <= 0 {
		return fmt.Errorf("config: accuracy %g, must be positive", c.Accuracy)
	}
	if c.Margin <= 1 {
		return fmt.Errorf("config: margin %g, must exceed 1", c.Margin)
	}
	if c.Solver == SolverMayfly && c.PopSize <= 0 {
		return fmt.Errorf("config: popSize %d, must be positive", c.PopSize)
	}

	p := c.Problem()
	return p.Validate()
}

// Problem builds the device problem described by this configuration.
func (c *Config) Problem() device.Problem {
	p := device.Default()
	p.Wavelengths = c.Wavelengths
	p.Cells = c.Cells
	p.CrossLength = c.CrossLength
	p.BarLength = c.BarLength
	p.Kappa0 = c.Kappa0
	p.KappaSlope = c.KappaSlope
	p.FilterRadius = c.FilterRadius
	p.Beta = c.Beta
	p.Eta = c.Eta
	p.Tolerance = c.Tolerance
	return p
}
