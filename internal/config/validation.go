package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/conneroisu/kiln/internal/asset"
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(string(asset.Development), string(asset.Production))),
	); err != nil {
		return err
	}
	if err := c.Paths.Validate(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := c.validateBundles(); err != nil {
		return fmt.Errorf("bundle: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Build.Validate(); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := c.Markup.Validate(); err != nil {
		return fmt.Errorf("markup: %w", err)
	}
	if err := c.Images.Validate(); err != nil {
		return fmt.Errorf("images: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return c.Log.Validate()
}

// Validate validates the per-class globs and output directories.
func (p *PathsConfig) Validate() error {
	if err := validation.ValidateStruct(&p.Src,
		validation.Field(&p.Src.Markup, validation.Required, validGlob),
		validation.Field(&p.Src.Styles, validation.Required, validGlob),
		validation.Field(&p.Src.Scripts, validation.Required, validGlob),
		validation.Field(&p.Src.Images, validation.Required, validGlob),
		validation.Field(&p.Src.Fonts, validation.Required, validGlob),
	); err != nil {
		return fmt.Errorf("src: %w", err)
	}
	if err := validation.ValidateStruct(&p.Watch,
		validation.Field(&p.Watch.Markup, validGlob),
		validation.Field(&p.Watch.Styles, validGlob),
		validation.Field(&p.Watch.Scripts, validGlob),
		validation.Field(&p.Watch.Images, validGlob),
		validation.Field(&p.Watch.Fonts, validGlob),
	); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := validation.ValidateStruct(&p.Build,
		validation.Field(&p.Build.Markup, validation.Required, safeRelPath),
		validation.Field(&p.Build.Styles, validation.Required, safeRelPath),
		validation.Field(&p.Build.Scripts, validation.Required, safeRelPath),
		validation.Field(&p.Build.Images, validation.Required, safeRelPath),
		validation.Field(&p.Build.Fonts, validation.Required, safeRelPath),
	); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return validation.ValidateStruct(p,
		validation.Field(&p.Clean, validation.Required, safeRelPath),
	)
}

func (c *Config) validateBundles() error {
	for name, file := range c.Bundle {
		class, err := asset.ParseClass(name)
		if err != nil {
			return err
		}
		if err := c.Spec(class).Validate(); err != nil {
			return err
		}
		if file == "" {
			return fmt.Errorf("%s: empty bundle name", name)
		}
	}
	return nil
}

// Validate validates the dev server configuration.
func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required, validation.By(noShellChars)),
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
	)
}

// Address returns the dev server listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the build configuration.
func (c *BuildConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(256)),
	)
}

// Validate validates the markup configuration.
func (c *MarkupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Partials, validGlob),
	)
}

// Validate validates the image configuration.
func (c *ImagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.JPEGQuality, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

// Validate validates the transform cache configuration.
func (c *CacheConfig) Validate() error {
	if !c.Persist {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required, safeRelPath),
	); err != nil {
		return err
	}
	for _, name := range c.Classes {
		if _, err := asset.ParseClass(name); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the logging configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&c.Format, validation.In("text", "json")),
	)
}

var validGlob = validation.By(func(value interface{}) error {
	pattern, _ := value.(string)
	if pattern == "" {
		return nil
	}
	if filepath.IsAbs(pattern) || strings.HasPrefix(pattern, "/") {
		return errors.New("must be relative to the project root")
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("malformed glob %q", pattern)
	}
	return nil
})

// safeRelPath rejects absolute paths and traversal out of the project root.
var safeRelPath = validation.By(func(value interface{}) error {
	path, _ := value.(string)
	if path == "" {
		return nil
	}
	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) {
		return errors.New("must be a relative path")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return errors.New("must not leave the project root")
	}
	return noShellChars(path)
})

func noShellChars(value interface{}) error {
	s, _ := value.(string)
	for _, char := range []string{";", "&", "|", "$", "`", "<", ">", "\"", "'", "\\"} {
		if strings.Contains(s, char) {
			return fmt.Errorf("contains forbidden character %q", char)
		}
	}
	return nil
}
