package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultFeatureLabel   = "**`{feature}`**"
	DefaultFeatureSection = "feature documentation"
	DefaultCrateSection   = "crate documentation"
	DefaultToolchain      = "nightly-2025-12-05"
	DefaultShiftHeadings  = 1
	DefaultMaxHops        = 64
	DefaultReadme         = "README.md"

	// FileName is the optional per-workspace config file.
	FileName = "insert-docs.toml"
	// EnvPrefix prefixes environment overrides, e.g. INSERT_DOCS_FEATURE_LABEL.
	EnvPrefix = "INSERT_DOCS"

	metadataKey = "insert-docs"
)

// Config is the merged configuration for one package. The workspace
// selection fields are only meaningful when loaded without a package
// manifest.
type Config struct {
	Package   []string `mapstructure:"package" yaml:"package,omitempty"`
	Workspace bool     `mapstructure:"workspace" yaml:"workspace"`
	Exclude   []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
	Jobs      int      `mapstructure:"jobs" yaml:"jobs"`

	FeatureIntoCrate     bool     `mapstructure:"feature-into-crate" yaml:"feature-into-crate"`
	CrateIntoReadme      bool     `mapstructure:"crate-into-readme" yaml:"crate-into-readme"`
	FeatureLabel         string   `mapstructure:"feature-label" yaml:"feature-label"`
	FeatureSection       string   `mapstructure:"feature-section-name" yaml:"feature-section-name"`
	CrateSection         string   `mapstructure:"crate-section-name" yaml:"crate-section-name"`
	ShiftHeadings        int      `mapstructure:"shift-headings" yaml:"shift-headings"`
	MaxHops              int      `mapstructure:"max-hops" yaml:"max-hops"`
	LinkToLatest         bool     `mapstructure:"link-to-latest" yaml:"link-to-latest"`
	DocumentPrivateItems bool     `mapstructure:"document-private-items" yaml:"document-private-items"`
	Check                bool     `mapstructure:"check" yaml:"check"`
	Strict               bool     `mapstructure:"strict" yaml:"strict"`
	AllowMissingSection  bool     `mapstructure:"allow-missing-section" yaml:"allow-missing-section"`
	AllowDirty           bool     `mapstructure:"allow-dirty" yaml:"allow-dirty"`
	AllowStaged          bool     `mapstructure:"allow-staged" yaml:"allow-staged"`
	Features             []string `mapstructure:"features" yaml:"features,omitempty"`
	AllFeatures          bool     `mapstructure:"all-features" yaml:"all-features"`
	NoDefaultFeatures    bool     `mapstructure:"no-default-features" yaml:"no-default-features"`
	HiddenFeatures       []string `mapstructure:"hidden-features" yaml:"hidden-features,omitempty"`
	Toolchain            string   `mapstructure:"toolchain" yaml:"toolchain"`
	Target               string   `mapstructure:"target" yaml:"target,omitempty"`
	TargetDir            string   `mapstructure:"target-dir" yaml:"target-dir,omitempty"`
	ReadmePath           string   `mapstructure:"readme-path" yaml:"readme-path,omitempty"`
	RustdocJSON          string   `mapstructure:"rustdoc-json" yaml:"rustdoc-json,omitempty"`
	NoCache              bool     `mapstructure:"no-cache" yaml:"no-cache"`
}

// Sources lists where a Config is assembled from. Every field is optional.
type Sources struct {
	// WorkspaceManifest is the workspace root Cargo.toml.
	WorkspaceManifest string
	// PackageManifest is the package Cargo.toml.
	PackageManifest string
	// File is an explicit config file. Otherwise insert-docs.toml next to
	// the workspace manifest is used when present.
	File string
	// Flags are bound by their flag name, see FlagKeys.
	Flags *pflag.FlagSet
}

// Loaded is a Config plus the keys no field consumed.
type Loaded struct {
	*Config
	Unknown []string
}

// FlagKeys maps CLI flag names to config keys where they differ.
var FlagKeys = map[string]string{
	"feature-section": "feature-section-name",
	"crate-section":   "crate-section-name",
}

// aliases maps legacy metadata key names to their config key.
var aliases = map[string]string{
	"shrink-headings": "shift-headings",
}

func defaults() map[string]any {
	return map[string]any{
		"package":                []string{},
		"workspace":              false,
		"exclude":                []string{},
		"jobs":                   runtime.NumCPU(),
		"feature-into-crate":     true,
		"crate-into-readme":      true,
		"feature-label":          DefaultFeatureLabel,
		"feature-section-name":   DefaultFeatureSection,
		"crate-section-name":     DefaultCrateSection,
		"shift-headings":         DefaultShiftHeadings,
		"max-hops":               DefaultMaxHops,
		"link-to-latest":         false,
		"document-private-items": false,
		"check":                  false,
		"strict":                 false,
		"allow-missing-section":  false,
		"allow-dirty":            false,
		"allow-staged":           false,
		"features":               []string{},
		"all-features":           false,
		"no-default-features":    false,
		"hidden-features":        []string{},
		"toolchain":              DefaultToolchain,
		"target":                 "",
		"target-dir":             "",
		"readme-path":            "",
		"rustdoc-json":           "",
		"no-cache":               false,
	}
}

// cacheBase returns the base cache directory for insert-docs.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/insert-docs as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "insert-docs")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "insert-docs")
	}
	return filepath.Join(os.TempDir(), "insert-docs")
}

// CacheDir returns the rustdoc JSON cache directory.
func CacheDir() string {
	return filepath.Join(cacheBase(), "rustdoc")
}

// UserConfigPath returns the per-user config file, which sits below every
// workspace source.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "insert-docs", "config.toml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "insert-docs", "config.toml")
	}
	return ""
}

// newViper sets up defaults, environment and flag layers.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("toml")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags == nil {
		return v, nil
	}

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := f.Name
		if mapped, ok := FlagKeys[key]; ok {
			key = mapped
		}
		if _, known := defaults()[key]; !known {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("binding flag %s: %w", f.Name, err)
		}
	})

	return v, bindErr
}

// Load merges every source into a Config. Precedence, lowest first: defaults,
// user config, [workspace.metadata.insert-docs], [package.metadata.insert-docs],
// insert-docs.toml, INSERT_DOCS_* environment, flags.
func Load(src Sources) (*Loaded, error) {
	v, err := newViper(src.Flags)
	if err != nil {
		return nil, err
	}

	if p := UserConfigPath(); p != "" {
		if err := mergeFile(v, p, false); err != nil {
			return nil, err
		}
	}

	if src.WorkspaceManifest != "" {
		meta, err := ReadMetadata(src.WorkspaceManifest, "workspace")
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(meta); err != nil {
			return nil, fmt.Errorf("merging workspace metadata: %w", err)
		}
	}

	if src.PackageManifest != "" {
		meta, err := ReadMetadata(src.PackageManifest, "package")
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(meta); err != nil {
			return nil, fmt.Errorf("merging package metadata: %w", err)
		}
	}

	switch {
	case src.File != "":
		if err := mergeFile(v, src.File, true); err != nil {
			return nil, err
		}
	case src.WorkspaceManifest != "":
		p := filepath.Join(filepath.Dir(src.WorkspaceManifest), FileName)
		if err := mergeFile(v, p, false); err != nil {
			return nil, err
		}
	}

	var cfg Config
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToListHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.finish()

	unknown := append([]string(nil), md.Unused...)
	sort.Strings(unknown)

	return &Loaded{Config: &cfg, Unknown: unknown}, nil
}

// mergeFile merges a TOML file into the config layer. A missing file is
// only an error when required is set.
func mergeFile(v *viper.Viper, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// ReadMetadata returns the [<table>.metadata.insert-docs] table of a
// Cargo.toml, where table is "package" or "workspace". A manifest without
// the table yields an empty map.
func ReadMetadata(manifest, table string) (map[string]any, error) {
	data, err := os.ReadFile(manifest)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", manifest, err)
	}

	meta := map[string]any{}
	t, _ := doc[table].(map[string]any)
	m, _ := t["metadata"].(map[string]any)
	docs, _ := m[metadataKey].(map[string]any)
	for key, value := range docs {
		key = strings.ToLower(key)
		if mapped, ok := aliases[key]; ok {
			key = mapped
		}
		meta[key] = value
	}

	return meta, nil
}

// finish applies the rules that tie fields together.
func (c *Config) finish() {
	if c.AllowDirty {
		c.AllowStaged = true
	}
	if c.Jobs < 1 {
		c.Jobs = 1
	}
	if c.MaxHops < 1 {
		c.MaxHops = DefaultMaxHops
	}
	c.Features = splitList(c.Features)
	c.HiddenFeatures = splitList(c.HiddenFeatures)
}

// splitList accepts both comma and space separated items.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		out = append(out, strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' })...)
	}
	return out
}

// stringToListHookFunc turns a list of arbitrary TOML values into strings.
func stringToListHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf([]string{}) || f.Kind() != reflect.Slice {
			return data, nil
		}
		items, ok := data.([]interface{})
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	}
}
