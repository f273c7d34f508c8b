package config

import (
	"fmt"
	"strings"
)

// SiteConfig holds crawl settings for a single host.
// Zero values mean "not set" and leave the flag or default value in place.
type SiteConfig struct {
	// Depth overrides the maximum depth used with -r for this host.
	Depth int `yaml:"depth,omitempty"`

	// OutputDir overrides the directory images are saved to.
	OutputDir string `yaml:"outputDir,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Workers overrides the number of concurrent page fetches.
	Workers int `yaml:"workers,omitempty"`

	// SameDomainImages restricts image downloads to the seed host.
	SameDomainImages bool `yaml:"sameDomainImages,omitempty"`

	// FileMode overrides the permission of saved images, in octal ("0644").
	FileMode string `yaml:"fileMode,omitempty"`

	// IgnorePatterns are URL path patterns never followed.
	// Patterns use glob syntax, e.g. "/logout", "/admin/*" or "*.pdf".
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL path patterns to follow.
	// If specified, only links matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .spider configuration file.
type File struct {
	// Sites maps host names to their site-specific configurations.
	// Keys are hosts without scheme, e.g. "example.com" or "example.com:8080".
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific host.
// It merges the site-specific configuration with defaults.
// Host names are compared case-insensitively.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults

	siteConfig, ok := cf.Sites[host]
	if !ok {
		for key, sc := range cf.Sites {
			if strings.EqualFold(key, host) {
				siteConfig, ok = sc, true
				break
			}
		}
	}
	if !ok {
		return result
	}

	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.OutputDir != "" {
		result.OutputDir = siteConfig.OutputDir
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.Workers != 0 {
		result.Workers = siteConfig.Workers
	}
	if siteConfig.SameDomainImages {
		result.SameDomainImages = true
	}
	if siteConfig.FileMode != "" {
		result.FileMode = siteConfig.FileMode
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}

	return result
}

func (cf *File) validate() error {
	if err := cf.Defaults.validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	for host, sc := range cf.Sites {
		if err := sc.validate(); err != nil {
			return fmt.Errorf("sites.%s: %w", host, err)
		}
	}
	return nil
}

func (sc SiteConfig) validate() error {
	if sc.Depth < 0 {
		return ErrInvalidDepth
	}
	if sc.Workers < 0 {
		return ErrInvalidWorkers
	}
	if sc.FileMode != "" {
		if _, err := ParseFileMode(sc.FileMode); err != nil {
			return err
		}
	}
	return nil
}

// ApplySiteConfig merges a site configuration into c.
// isExplicit reports whether the named CLI flag was given on the command
// line; explicitly given flags always win over the file.
// Pattern lists are file-only and are appended.
func (c *Config) ApplySiteConfig(sc SiteConfig, isExplicit func(flag string) bool) {
	if isExplicit == nil {
		isExplicit = func(string) bool { return false }
	}

	if sc.Depth != 0 && !isExplicit(FlagLevel) {
		c.MaxDepth = sc.Depth
	}
	if sc.OutputDir != "" && !isExplicit(FlagPath) {
		c.OutputDir = sc.OutputDir
	}
	if sc.UserAgent != "" && !isExplicit(FlagUserAgent) {
		c.UserAgent = sc.UserAgent
	}
	if sc.Workers != 0 && !isExplicit(FlagWorkers) {
		c.Workers = sc.Workers
	}
	if sc.SameDomainImages {
		c.SameDomainImages = true
	}
	// File modes are checked when the file is loaded.
	if sc.FileMode != "" && !isExplicit(FlagFileMode) {
		if mode, err := ParseFileMode(sc.FileMode); err == nil {
			c.FileMode = mode
		}
	}
	c.IgnorePatterns = append(c.IgnorePatterns, sc.IgnorePatterns...)
	c.FollowPatterns = append(c.FollowPatterns, sc.FollowPatterns...)
}

// Flag names that a configuration file can override.
const (
	FlagLevel     = "level"
	FlagPath      = "path"
	FlagUserAgent = "user-agent"
	FlagWorkers   = "workers"
	FlagFileMode  = "file-mode"
)
