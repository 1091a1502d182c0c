package pipeline

import "time"

// Config is the single input of a pipeline run, read from
// config.json5 by the entry points. Politeness, caps and thresholds
// are deliberately tunable here instead of constants in the scraping
// code: the site's tolerance and pagination behavior change under us.
type Config struct {
	// top-level listing entry points, usually one per region
	Seeds []string `json:"seeds"`

	PolitenessIntervalMs int    `json:"politeness_interval_ms"`
	MaxAttempts          int    `json:"max_attempts"`
	BackoffFloorMs       int    `json:"backoff_floor_ms"`
	RequestTimeoutMs     int    `json:"request_timeout_ms"`
	UserAgent            string `json:"user_agent"`

	MaxPagesPerSeed int `json:"max_pages_per_seed"`
	Workers         int `json:"workers"`

	// fraction of failed page fetches above which the run aborts
	MaxFailedPageFraction float64 `json:"max_failed_page_fraction"`
	// fraction of rejected records above which the run aborts
	MaxRejectionRate float64 `json:"max_rejection_rate"`

	// drop locations missing from this crawl instead of retaining them
	PurgeMissing bool `json:"purge_missing"`

	OutputDir string `json:"output_dir"`
	StorePath string `json:"store_path"`

	// whole-run budget; 0 means no budget
	RunTimeoutMs int `json:"run_timeout_ms"`
}

func (c Config) withDefaults() Config {
	if c.PolitenessIntervalMs <= 0 {
		c.PolitenessIntervalMs = 500
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffFloorMs <= 0 {
		c.BackoffFloorMs = 1000
	}
	if c.RequestTimeoutMs <= 0 {
		c.RequestTimeoutMs = 30_000
	}
	if c.MaxPagesPerSeed <= 0 {
		c.MaxPagesPerSeed = 50
	}
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.MaxFailedPageFraction <= 0 {
		c.MaxFailedPageFraction = 0.5
	}
	if c.MaxRejectionRate <= 0 {
		c.MaxRejectionRate = 0.2
	}
	if c.OutputDir == "" {
		c.OutputDir = "artifacts"
	}
	if c.StorePath == "" {
		c.StorePath = "locations.db"
	}
	return c
}

func (c Config) politenessInterval() time.Duration {
	return time.Duration(c.PolitenessIntervalMs) * time.Millisecond
}

func (c Config) backoffFloor() time.Duration {
	return time.Duration(c.BackoffFloorMs) * time.Millisecond
}

func (c Config) requestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
