package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/r-three/git-theta-go/pkg/types"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, types.UpdateDense, cfg.UpdateType)
	assert.Equal(t, -1, cfg.MaxConcurrency)
	assert.Equal(t, 1e-8, cfg.ParameterAtol)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GIT_THETA_UPDATE_TYPE", "sparse")
	t.Setenv("GIT_THETA_PARAMETER_RTOL", "0.5")
	t.Setenv("GIT_THETA_MAX_CONCURRENCY", "4")
	t.Setenv("GIT_THETA_MANUAL_MERGE", "true")

	cfg := FromEnv()
	assert.Equal(t, types.UpdateSparse, cfg.UpdateType)
	assert.Equal(t, 0.5, cfg.ParameterRtol)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.True(t, cfg.ManualMerge)
}

func TestFromEnvIgnoresMalformed(t *testing.T) {
	t.Setenv("GIT_THETA_MAX_CONCURRENCY", "not-a-number")
	cfg := FromEnv()
	assert.Equal(t, Defaults().MaxConcurrency, cfg.MaxConcurrency)
}

func TestConcurrencyResolvesAuto(t *testing.T) {
	cfg := Defaults()
	assert.Greater(t, cfg.Concurrency(), 0)
}
