// Package config centralizes every GIT_THETA_* environment variable into
// one immutable record built once at process entry, replacing the
// original tool's scattered descriptor-based environment lookups
// (Design Notes: "Global environment-variable state").
package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/r-three/git-theta-go/pkg/types"
)

// Config is the fully resolved, immutable process configuration. Build
// one with FromEnv and thread it explicitly through calls rather than
// reaching for environment variables deeper in the call stack.
type Config struct {
	CheckpointType  types.CheckpointType
	UpdateType      types.UpdateType
	ParameterAtol   float64
	ParameterRtol   float64
	LSHSignatureBits int
	LSHThreshold    float64
	LSHPoolSize     int
	MaxConcurrency  int
	ManualMerge     bool
}

// Defaults returns the configuration that applies when no environment
// variable is set. The checkpoint type defaults to the raw reference
// adapter; no pytorch adapter is built in.
func Defaults() Config {
	return Config{
		CheckpointType:   types.CheckpointRaw,
		UpdateType:       types.UpdateDense,
		ParameterAtol:    1e-8,
		ParameterRtol:    1e-5,
		LSHSignatureBits: 16,
		LSHThreshold:     1e-6,
		LSHPoolSize:      10_000,
		MaxConcurrency:   -1,
		ManualMerge:      false,
	}
}

// FromEnv builds a Config by overlaying GIT_THETA_* environment variables
// on top of Defaults(). Malformed values fall back silently to keep the
// filter usable under git's restricted execution environment; there is
// no strict-validation path.
func FromEnv() Config {
	cfg := Defaults()
	if v, ok := lookup("GIT_THETA_CHECKPOINT_TYPE"); ok {
		cfg.CheckpointType = types.CheckpointType(v)
	}
	if v, ok := lookup("GIT_THETA_UPDATE_TYPE"); ok {
		cfg.UpdateType = types.UpdateType(v)
	}
	if v, ok := lookupFloat("GIT_THETA_PARAMETER_ATOL"); ok {
		cfg.ParameterAtol = v
	}
	if v, ok := lookupFloat("GIT_THETA_PARAMETER_RTOL"); ok {
		cfg.ParameterRtol = v
	}
	if v, ok := lookupInt("GIT_THETA_LSH_SIGNATURE_SIZE"); ok {
		cfg.LSHSignatureBits = v
	}
	if v, ok := lookupFloat("GIT_THETA_LSH_THRESHOLD"); ok {
		cfg.LSHThreshold = v
	}
	if v, ok := lookupInt("GIT_THETA_LSH_POOL_SIZE"); ok {
		cfg.LSHPoolSize = v
	}
	if v, ok := lookupInt("GIT_THETA_MAX_CONCURRENCY"); ok {
		cfg.MaxConcurrency = v
	}
	if v, ok := lookupBool("GIT_THETA_MANUAL_MERGE"); ok {
		cfg.ManualMerge = v
	}
	return cfg
}

// Concurrency resolves MaxConcurrency, turning -1 into the runtime's
// available parallelism.
func (c Config) Concurrency() int {
	if c.MaxConcurrency > 0 {
		return c.MaxConcurrency
	}
	return runtime.GOMAXPROCS(0)
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func lookupFloat(name string) (float64, bool) {
	v, ok := lookup(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func lookupInt(name string) (int, bool) {
	v, ok := lookup(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupBool(name string) (bool, bool) {
	v, ok := lookup(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
