// Package config provides configuration structures and utilities for spider.
// It defines the crawl options built from CLI flags, their defaults and
// validation, and the optional YAML file with per-site overrides.
package config
