// Package loadtest drives a running tray service over HTTP: it posts
// assessments for many resources concurrently and then checks that every
// rendered tray shows the output the active method should compute.
package loadtest

import (
	"errors"
	"time"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid load test config")

// Config holds configuration for a load test run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Resources   int           // Number of distinct resources
	Assessments int           // Number of assessments to post
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	ResourceDef string        // Seeded resource definition name
	Dimension   string        // Input dimension name
	Output      string        // Output dimension name
	Tray        string        // Tray rendered for verification
	Min, Max    int64         // Inclusive integer value range
	Verbose     bool          // Log every mismatch
}

// DefaultConfig matches the default seeded tray.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:9080",
		Resources:   100,
		Assessments: 1000,
		Workers:     8,
		Timeout:     10 * time.Second,
		ResourceDef: "post",
		Dimension:   "likeness",
		Output:      "total likeness",
		Tray:        "default",
		Min:         0,
		Max:         1,
	}
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("base url is required"))
	case c.Resources <= 0 || c.Assessments <= 0 || c.Workers <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("resources, assessments and workers must be positive"))
	case c.Min > c.Max:
		return errors.Join(ErrInvalidConfig, errors.New("min exceeds max"))
	case c.ResourceDef == "" || c.Dimension == "" || c.Output == "":
		return errors.Join(ErrInvalidConfig, errors.New("resource def, dimension and output names are required"))
	}
	return nil
}

// Step is one planned assessment.
type Step struct {
	Resource string
	Value    int64
}

// Stats holds run statistics.
type Stats struct {
	Planned    int
	Submitted  int
	Successful int
	Failed     int
	Verified   int
	Mismatched int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// hashes are the entry hashes a run needs, resolved from /names.
type hashes struct {
	resourceDef model.EntryHash
	dimension   model.EntryHash
	output      model.EntryHash
}
