package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBGG(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateGuard(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBGG() error {
	if len(c.BGG.Hosts) == 0 {
		return errors.New("bgg.hosts must list at least one host")
	}
	for _, host := range c.BGG.Hosts {
		parsed, err := url.Parse(host)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("bgg.hosts: %q is not an absolute url", host)
		}
	}
	if c.BGG.RequestTimeout <= 0 {
		return errors.New("bgg.request_timeout must be positive (seconds)")
	}
	if c.BGG.FetchComments {
		if c.BGG.CommentsPageSize <= 0 {
			return errors.New("bgg.comments_page_size must be positive when bgg.fetch_comments is true")
		}
		if c.BGG.CommentsTop < 0 {
			return errors.New("bgg.comments_top must not be negative")
		}
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.BatchSize <= 0 || c.Fetch.BatchSize > maxBatchSize {
		return fmt.Errorf("fetch.batch_size must be between 1 and %d", maxBatchSize)
	}
	if err := ensureNonNegativeMap(map[string]int{
		"fetch.pacing_interval_ms": c.Fetch.PacingIntervalMS,
		"fetch.pacing_jitter_ms":   c.Fetch.PacingJitterMS,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must not be negative")
	}
	if c.Retry.MaxQueuedPolls < 0 {
		return errors.New("retry.max_queued_polls must not be negative")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be at least 1")
	}
	if err := ensureNonNegativeMap(map[string]int{
		"retry.base_delay_ms":   c.Retry.BaseDelayMS,
		"retry.max_delay_ms":    c.Retry.MaxDelayMS,
		"retry.queued_delay_ms": c.Retry.QueuedDelayMS,
		"retry.fixed_delay_ms":  c.Retry.FixedDelayMS,
		"retry.jitter_ms":       c.Retry.JitterMS,
	}); err != nil {
		return err
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.New("retry.max_delay_ms must be greater than or equal to retry.base_delay_ms")
	}
	return nil
}

func (c *Config) validateGuard() error {
	if c.Guard.MinYield < 0 {
		return errors.New("guard.min_yield must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensureNonNegativeMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	return nil
}
