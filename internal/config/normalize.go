package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBGG(); err != nil {
		return err
	}
	if err := c.normalizeGuard(); err != nil {
		return err
	}
	c.normalizeMerge()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv(envDataDir); ok && strings.TrimSpace(value) != "" {
		c.Paths.DataDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.dataset_path", &c.Paths.DatasetPath, defaultDatasetFile},
		{"paths.overrides_path", &c.Paths.OverridesPath, defaultOverridesFile},
		{"paths.version_image_cache", &c.Paths.VersionImageCache, defaultVersionImageCache},
		{"paths.history_db", &c.Paths.HistoryDB, defaultHistoryDBFile},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDirName},
	}
	for _, field := range fields {
		value := strings.TrimSpace(*field.value)
		if value == "" {
			value = filepath.Join(c.Paths.DataDir, field.fallback)
		} else if !filepath.IsAbs(value) && !strings.HasPrefix(value, "~") {
			value = filepath.Join(c.Paths.DataDir, value)
		}
		expanded, err := expandPath(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeBGG() error {
	if c.BGG.APIToken == "" {
		if value, ok := os.LookupEnv(envAPIToken); ok {
			c.BGG.APIToken = value
		}
	}
	c.BGG.APIToken = strings.TrimSpace(c.BGG.APIToken)
	c.BGG.UserAgent = strings.TrimSpace(c.BGG.UserAgent)
	if c.BGG.UserAgent == "" {
		c.BGG.UserAgent = defaultUserAgent
	}

	hosts := make([]string, 0, len(c.BGG.Hosts))
	seen := make(map[string]struct{}, len(c.BGG.Hosts))
	for _, host := range c.BGG.Hosts {
		host = strings.TrimRight(strings.TrimSpace(host), "/")
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	c.BGG.Hosts = hosts
	return nil
}

func (c *Config) normalizeGuard() error {
	value, ok := os.LookupEnv(envMinYield)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", envMinYield, value)
	}
	c.Guard.MinYield = parsed
	return nil
}

func (c *Config) normalizeMerge() {
	fields := make([]string, 0, len(c.Merge.OverrideFields))
	for _, field := range c.Merge.OverrideFields {
		field = strings.ToLower(strings.TrimSpace(field))
		if field != "" {
			fields = append(fields, field)
		}
	}
	c.Merge.OverrideFields = fields
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
