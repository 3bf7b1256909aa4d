package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/xplshn/gsc/pkg/cli"
	"github.com/xyproto/env/v2"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatSafeChecks Feature = iota
	FeatInline
	FeatFold
	FeatReuseRegisters
	FeatImplicitCast
	FeatCount
)

type Warning int

const (
	WarnImplicitCast Warning = iota
	WarnShadow
	WarnUnreachableCode
	WarnUnusedValue
	WarnPedantic
	WarnExtra
	WarnCount
)

const (
	DefaultCompileTimeout = 5 * time.Second
	DefaultLoopLimit      = 10000000
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features       map[Feature]Info
	Warnings       map[Warning]Info
	FeatureMap     map[string]Feature
	WarningMap     map[string]Warning
	TargetArch     string
	QbeTarget      string
	WordSize       int
	WordType       string
	StackAlignment int
	CompileTimeout time.Duration
	LoopLimit      int
}

func NewConfig() *Config {
	cfg := &Config{
		FeatureMap:     make(map[string]Feature),
		WarningMap:     make(map[string]Warning),
		WordSize:       8,
		WordType:       "l",
		StackAlignment: 16,
		CompileTimeout: DefaultCompileTimeout,
		LoopLimit:      DefaultLoopLimit,
		TargetArch:     runtime.GOARCH,
		QbeTarget:      libqbe.DefaultTarget(runtime.GOOS, runtime.GOARCH),
	}

	features := map[Feature]Info{
		FeatSafeChecks:     {"safe-checks", true, "Instrument loops, dynamic indexes and divisions with runtime checks."},
		FeatInline:         {"inline", true, "Inline calls to functions declared `inline`."},
		FeatFold:           {"fold", true, "Fold constant expressions at compile time."},
		FeatReuseRegisters: {"reuse-registers", true, "Reuse registers of values that are provably dead."},
		FeatImplicitCast:   {"implicit-cast", true, "Insert implicit casts between mismatching numeric operands."},
	}

	warnings := map[Warning]Info{
		WarnImplicitCast:    {"implicit-cast", true, "Warn when an implicit numeric cast is inserted."},
		WarnShadow:          {"shadow", true, "Warn when a declaration hides a member, global or outer local."},
		WarnUnreachableCode: {"unreachable-code", true, "Warn about code that will never be executed."},
		WarnUnusedValue:     {"unused-value", false, "Warn about expression statements whose value is discarded."},
		WarnPedantic:        {"pedantic", false, "Issue all warnings demanded by the strict language rules."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// Clone returns an independent copy so concurrent compilations never share flag maps.
func (c *Config) Clone() *Config {
	n := *c
	n.Features = make(map[Feature]Info, len(c.Features))
	n.Warnings = make(map[Warning]Info, len(c.Warnings))
	for k, v := range c.Features {
		n.Features[k] = v
	}
	for k, v := range c.Warnings {
		n.Warnings[k] = v
	}
	return &n
}

// SetTarget configures word size and alignment for a QBE target. An empty
// qbeTarget selects the host target.
func (c *Config) SetTarget(goos, goarch, qbeTarget string) error {
	if qbeTarget == "" {
		c.QbeTarget = libqbe.DefaultTarget(goos, goarch)
	} else {
		c.QbeTarget = qbeTarget
	}

	c.TargetArch = goarch

	switch c.QbeTarget {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize, c.WordType, c.StackAlignment = 8, "l", 16
	default:
		c.WordSize, c.WordType, c.StackAlignment = 8, "l", 16
		return fmt.Errorf("unrecognized or unsupported QBE target '%s', defaulting to 64-bit properties", c.QbeTarget)
	}
	return nil
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// LoadEnv applies GSC_* environment overrides on top of the current settings.
func (c *Config) LoadEnv() error {
	env.Load()
	if ms := env.Int("GSC_TIMEOUT_MS", 0); ms > 0 {
		c.CompileTimeout = time.Duration(ms) * time.Millisecond
	}
	if limit := env.Int("GSC_LOOP_LIMIT", 0); limit > 0 {
		c.LoopLimit = limit
	}
	if env.Bool("GSC_NO_SAFE_CHECKS") {
		c.SetFeature(FeatSafeChecks, false)
	}
	if flags := env.Str("GSC_FLAGS"); flags != "" {
		c.ProcessDirectiveFlags(flags)
	}
	if target := env.Str("GSC_TARGET"); target != "" {
		return c.SetTarget(runtime.GOOS, runtime.GOARCH, target)
	}
	return nil
}

// SetupFlagGroups registers the -W and -F toggle families on fs. The
// returned entries are indexed by Warning and Feature.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features []*cli.GroupEntry) {
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		warnings = append(warnings, &cli.GroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		features = append(features, &cli.GroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	fs.AddGroup(&cli.FlagGroup{Name: "Warning Flags", Prefix: "W", Kind: "warning", Entries: warnings})
	fs.AddGroup(&cli.FlagGroup{Name: "Feature Flags", Prefix: "F", Kind: "feature", Entries: features})
	return warnings, features
}

// ApplyFlagGroups copies the toggles set on the command line into c.
// Disabling wins over enabling.
func (c *Config) ApplyFlagGroups(warnings, features []*cli.GroupEntry) {
	for i, e := range warnings {
		if e.On {
			c.SetWarning(Warning(i), true)
		}
		if e.Off {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, e := range features {
		if e.On {
			c.SetFeature(Feature(i), true)
		}
		if e.Off {
			c.SetFeature(Feature(i), false)
		}
	}
}

// Key renders every setting that changes generated code, for cache keys.
func (c *Config) Key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%d/%d", c.QbeTarget, c.WordSize, c.LoopLimit)
	for i := Feature(0); i < FeatCount; i++ {
		if c.IsFeatureEnabled(i) {
			sb.WriteString(" +" + c.Features[i].Name)
		}
	}
	return sb.String()
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return
	}

	if name == "pedantic" && isWarning {
		c.SetWarning(WarnPedantic, true)
		c.SetWarning(WarnUnusedValue, true)
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
	}
}

func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" || name == "pedantic" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" && name != "pedantic" {
			c.applyFlag("-" + name)
		}
	})
}

func (c *Config) ProcessDirectiveFlags(flagStr string) {
	for _, flag := range strings.Fields(flagStr) {
		c.applyFlag(flag)
	}
}
