package writebehind

import "time"

const (
	defaultWorkDelay         = time.Second
	defaultMaxFallBehind     = time.Second
	defaultBatchSize         = 1
	defaultRetryAttemptDelay = time.Second
	defaultConcurrency       = 1
)

// Config is the immutable write-behind configuration. It is copied when a
// Coordinator is created; zero fields take the defaults below.
type Config struct {
	WorkDelay            time.Duration // scheduling period; 0 => 1s
	MaxAllowedFallBehind time.Duration // max age of the oldest pending op; 0 => 1s
	BatchingEnabled      bool          // use WriteAll/DeleteAll
	BatchSize            int           // 0 => 1
	SynchronousWrite     bool          // Enqueue waits for delivery; full buckets block
	RetryAttempts        int           // attempts after the first; 0 => none
	RetryAttemptDelay    time.Duration // fixed; 0 => 1s
	RateLimit            int           // ops/sec across all buckets; 0 => unlimited
	MaxQueueSize         int           // distinct pending keys per bucket; 0 => unbounded
	Concurrency          int           // bucket count; 0 => 1
}

// Validate reports the first negative field.
func (c Config) Validate() error {
	switch {
	case c.WorkDelay < 0:
		return &ConfigError{Field: "WorkDelay", Reason: "must not be negative"}
	case c.MaxAllowedFallBehind < 0:
		return &ConfigError{Field: "MaxAllowedFallBehind", Reason: "must not be negative"}
	case c.BatchSize < 0:
		return &ConfigError{Field: "BatchSize", Reason: "must not be negative"}
	case c.RetryAttempts < 0:
		return &ConfigError{Field: "RetryAttempts", Reason: "must not be negative"}
	case c.RetryAttemptDelay < 0:
		return &ConfigError{Field: "RetryAttemptDelay", Reason: "must not be negative"}
	case c.RateLimit < 0:
		return &ConfigError{Field: "RateLimit", Reason: "must not be negative"}
	case c.MaxQueueSize < 0:
		return &ConfigError{Field: "MaxQueueSize", Reason: "must not be negative"}
	case c.Concurrency < 0:
		return &ConfigError{Field: "Concurrency", Reason: "must not be negative"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	c.WorkDelay = coalesce(c.WorkDelay, defaultWorkDelay)
	c.MaxAllowedFallBehind = coalesce(c.MaxAllowedFallBehind, defaultMaxFallBehind)
	c.BatchSize = coalesce(c.BatchSize, defaultBatchSize)
	c.RetryAttemptDelay = coalesce(c.RetryAttemptDelay, defaultRetryAttemptDelay)
	c.Concurrency = coalesce(c.Concurrency, defaultConcurrency)
	return c
}
