package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateReviewQueue(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.WorkdaySeconds <= 0 {
		return errors.New("pipeline.workday_seconds must be positive")
	}
	if c.Pipeline.EfficiencyThreshold < 0 || c.Pipeline.EfficiencyThreshold > 100 {
		return errors.New("pipeline.efficiency_threshold must be between 0 and 100")
	}
	if c.Pipeline.ReworkThreshold < 0 {
		return errors.New("pipeline.rework_threshold must not be negative")
	}
	return nil
}

func (c *Config) validateReviewQueue() error {
	if c.ReviewQueue.HighAfterHours <= 0 {
		return errors.New("review_queue.high_after_hours must be positive")
	}
	if c.ReviewQueue.LowBeforeHours < 0 {
		return errors.New("review_queue.low_before_hours must not be negative")
	}
	if c.ReviewQueue.LowBeforeHours >= c.ReviewQueue.HighAfterHours {
		return fmt.Errorf("review_queue.low_before_hours (%d) must be below high_after_hours (%d)",
			c.ReviewQueue.LowBeforeHours, c.ReviewQueue.HighAfterHours)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
