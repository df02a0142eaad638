// Package config provides configuration management for kiln using Viper for
// flexible loading from files, environment variables, and command-line flags.
//
// The configuration declares, per asset class, a source glob, an output
// directory and a watch glob, plus the development/production mode switch,
// dev server settings and the optional persisted transform cache. Defaults
// reproduce the layout of a conventional gulp front-end project (src/ ->
// build/). Configuration is read once at startup; an invalid configuration is
// fatal.
package config

import (
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

type Config struct {
	Mode   string            `mapstructure:"mode" yaml:"mode"`
	Paths  PathsConfig       `mapstructure:"paths" yaml:"paths"`
	Bundle map[string]string `mapstructure:"bundle" yaml:"bundle,omitempty"`
	Server ServerConfig      `mapstructure:"server" yaml:"server"`
	Build  BuildConfig       `mapstructure:"build" yaml:"build"`
	Watch  WatchConfig       `mapstructure:"watch" yaml:"watch"`
	Markup MarkupConfig      `mapstructure:"markup" yaml:"markup"`
	Styles StylesConfig      `mapstructure:"styles" yaml:"styles"`
	Images ImagesConfig      `mapstructure:"images" yaml:"images"`
	Cache  CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Notify NotifyConfig      `mapstructure:"notify" yaml:"notify"`
	Log    LogConfig         `mapstructure:"log" yaml:"log"`
}

// ClassPaths holds one value per asset class.
type ClassPaths struct {
	Markup  string `mapstructure:"markup" yaml:"markup"`
	Styles  string `mapstructure:"styles" yaml:"styles"`
	Scripts string `mapstructure:"scripts" yaml:"scripts"`
	Images  string `mapstructure:"images" yaml:"images"`
	Fonts   string `mapstructure:"fonts" yaml:"fonts"`
}

// Get returns the value for class c.
func (p ClassPaths) Get(c asset.Class) string {
	switch c {
	case asset.Markup:
		return p.Markup
	case asset.Styles:
		return p.Styles
	case asset.Scripts:
		return p.Scripts
	case asset.Images:
		return p.Images
	case asset.Fonts:
		return p.Fonts
	default:
		return ""
	}
}

type PathsConfig struct {
	Src   ClassPaths `mapstructure:"src" yaml:"src"`
	Build ClassPaths `mapstructure:"build" yaml:"build"`
	Watch ClassPaths `mapstructure:"watch" yaml:"watch"`
	// Clean is the output root removed by `kiln clean` and served by the dev server.
	Clean string `mapstructure:"clean" yaml:"clean"`
}

type ServerConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	Open      bool   `mapstructure:"open" yaml:"open"`
	LogPrefix string `mapstructure:"log_prefix" yaml:"log_prefix"`
}

type BuildConfig struct {
	// Workers bounds concurrent transforms within one pipeline run.
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type MarkupConfig struct {
	// Partials is a glob of templates made available to every page.
	Partials string `mapstructure:"partials" yaml:"partials"`
}

type StylesConfig struct {
	SassBinary string   `mapstructure:"sass_binary" yaml:"sass_binary"`
	Targets    []string `mapstructure:"targets" yaml:"targets"`
}

type ImagesConfig struct {
	JPEGQuality int `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

type CacheConfig struct {
	Persist bool     `mapstructure:"persist" yaml:"persist"`
	Path    string   `mapstructure:"path" yaml:"path"`
	Classes []string `mapstructure:"classes" yaml:"classes"`
}

type NotifyConfig struct {
	Desktop bool `mapstructure:"desktop" yaml:"desktop"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns the default configuration as a key/value map in viper's
// dotted notation.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"paths.src.markup":    "src/*.gohtml",
		"paths.src.styles":    "src/scss/core/style.scss",
		"paths.src.scripts":   "src/js/**/*.js",
		"paths.src.images":    "src/img/**/*.{png,jpg,svg,jpeg}",
		"paths.src.fonts":     "src/fonts/**/*.*",
		"paths.build.markup":  "build",
		"paths.build.styles":  "build/css",
		"paths.build.scripts": "build/js",
		"paths.build.images":  "build/img",
		"paths.build.fonts":   "build/fonts",
		"paths.watch.markup":  "src/**/*.gohtml",
		"paths.watch.styles":  "src/scss/**/*.scss",
		"paths.watch.scripts": "src/js/**/*.js",
		"paths.watch.images":  "src/img/**/*.{png,jpg,svg,jpeg}",
		"paths.watch.fonts":   "src/fonts/**/*.*",
		"paths.clean":         "build",
		"server.host":         "localhost",
		"server.port":         9000,
		"server.open":         false,
		"server.log_prefix":   "kiln",
		"build.workers":       4,
		"watch.debounce":      "300ms",
		"markup.partials":     "src/templates/**/*.gohtml",
		"styles.sass_binary":  "sass",
		"styles.targets":      []string{"chrome58", "firefox57", "safari11", "edge16"},
		"images.jpeg_quality": 85,
		"cache.persist":       false,
		"cache.path":          ".kiln/cache.db",
		"cache.classes":       []string{string(asset.Images)},
		"notify.desktop":      true,
		"log.level":           "info",
		"log.format":          "text",
	}
}

// SetDefaults registers Defaults on v without overriding explicit values.
func SetDefaults(v *viper.Viper) {
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, kerrors.NewConfigError(kerrors.ErrCodeConfigInvalid, "cannot decode configuration", err)
	}

	config.Mode = string(resolveMode(config.Mode))

	if err := config.Validate(); err != nil {
		return nil, kerrors.NewConfigError(kerrors.ErrCodeConfigInvalid, "invalid configuration", err)
	}

	return &config, nil
}

// resolveMode applies the mode precedence: explicit config (including
// KILN_MODE), then KILN_ENV, then NODE_ENV.
func resolveMode(configured string) asset.Mode {
	if configured != "" {
		return asset.ParseMode(configured)
	}
	if env := os.Getenv("KILN_ENV"); env != "" {
		return asset.ParseMode(env)
	}
	return asset.ParseMode(os.Getenv("NODE_ENV"))
}

// AssetMode returns the parsed mode.
func (c *Config) AssetMode() asset.Mode {
	return asset.ParseMode(c.Mode)
}

// Specs returns the asset class specs in declared build order.
func (c *Config) Specs() []asset.Spec {
	specs := make([]asset.Spec, 0, len(asset.Classes()))
	for _, class := range asset.Classes() {
		specs = append(specs, c.Spec(class))
	}
	return specs
}

// Spec returns the spec for one class.
func (c *Config) Spec(class asset.Class) asset.Spec {
	return asset.Spec{
		Class:  class,
		Source: c.Paths.Src.Get(class),
		Output: c.Paths.Build.Get(class),
		Watch:  c.Paths.Watch.Get(class),
		Bundle: c.Bundle[string(class)],
	}
}

// CachedClasses returns the classes whose transform results are persisted.
// Empty unless cache.persist is set.
func (c *Config) CachedClasses() map[asset.Class]bool {
	out := make(map[asset.Class]bool)
	if !c.Cache.Persist {
		return out
	}
	for _, name := range c.Cache.Classes {
		if class, err := asset.ParseClass(name); err == nil {
			out[class] = true
		}
	}
	return out
}
