package config

import (
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/cli"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	be.True(t, cfg.IsFeatureEnabled(FeatSafeChecks))
	be.True(t, cfg.IsFeatureEnabled(FeatInline))
	be.True(t, !cfg.IsWarningEnabled(WarnPedantic))
	be.Equal(t, cfg.CompileTimeout, 5*time.Second)
	be.Equal(t, cfg.LoopLimit, 10000000)
	be.True(t, cfg.QbeTarget != "")
}

func TestDirectiveFlags(t *testing.T) {
	cfg := NewConfig()
	cfg.ProcessDirectiveFlags("-Fno-safe-checks -Wno-shadow -Wunused-value")
	be.True(t, !cfg.IsFeatureEnabled(FeatSafeChecks))
	be.True(t, !cfg.IsWarningEnabled(WarnShadow))
	be.True(t, cfg.IsWarningEnabled(WarnUnusedValue))

	cfg.ProcessDirectiveFlags("-Wno-all")
	for i := Warning(0); i < WarnCount; i++ {
		be.True(t, !cfg.IsWarningEnabled(i))
	}

	cfg.ProcessDirectiveFlags("-pedantic")
	be.True(t, cfg.IsWarningEnabled(WarnPedantic))
	be.True(t, cfg.IsWarningEnabled(WarnUnusedValue))
}

func TestClone(t *testing.T) {
	a := NewConfig()
	b := a.Clone()
	b.SetFeature(FeatFold, false)
	be.True(t, a.IsFeatureEnabled(FeatFold))
	be.True(t, !b.IsFeatureEnabled(FeatFold))
}

func TestKey(t *testing.T) {
	a, b := NewConfig(), NewConfig()
	be.Equal(t, a.Key(), b.Key())
	b.SetFeature(FeatInline, false)
	be.True(t, a.Key() != b.Key())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("GSC_TIMEOUT_MS", "250")
	t.Setenv("GSC_LOOP_LIMIT", "42")
	t.Setenv("GSC_NO_SAFE_CHECKS", "1")
	t.Setenv("GSC_FLAGS", "-Fno-inline")
	t.Setenv("GSC_TARGET", "")

	cfg := NewConfig()
	be.Err(t, cfg.LoadEnv(), nil)
	be.Equal(t, cfg.CompileTimeout, 250*time.Millisecond)
	be.Equal(t, cfg.LoopLimit, 42)
	be.True(t, !cfg.IsFeatureEnabled(FeatSafeChecks))
	be.True(t, !cfg.IsFeatureEnabled(FeatInline))
}

func TestLoadEnvTarget(t *testing.T) {
	t.Setenv("GSC_TARGET", "rv64")
	cfg := NewConfig()
	be.Err(t, cfg.LoadEnv(), nil)
	be.Equal(t, cfg.QbeTarget, "rv64")

	t.Setenv("GSC_TARGET", "arm64")
	be.Err(t, cfg.LoadEnv(), nil)
	be.Equal(t, cfg.QbeTarget, "arm64")

	t.Setenv("GSC_TARGET", "pdp11")
	be.True(t, NewConfig().LoadEnv() != nil)
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("gsc")
	warnings, features := cfg.SetupFlagGroups(fs)
	be.Equal(t, len(warnings), int(WarnCount))
	be.Equal(t, len(features), int(FeatCount))

	be.Err(t, fs.Parse([]string{"-Wunused-value", "-Fno-fold", "x.gsc"}), nil)
	cfg.ApplyFlagGroups(warnings, features)
	be.True(t, cfg.IsWarningEnabled(WarnUnusedValue))
	be.True(t, !cfg.IsFeatureEnabled(FeatFold))
	be.Equal(t, fs.Args(), []string{"x.gsc"})
}
