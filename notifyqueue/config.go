package notifyqueue

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	MaxRetries             uint16
	MaxQueuedItemsLowPrio  uint64
	MaxQueuedItemsHighPrio uint64
	WorkerTimeout          time.Duration
	RetryDelay             time.Duration
	// MaxAge is how long an alert stays relevant
	MaxAge time.Duration
}

var DefaultConfig = Config{
	MaxRetries:             5,
	MaxQueuedItemsLowPrio:  1024,
	MaxQueuedItemsHighPrio: 2048,
	WorkerTimeout:          4 * time.Second,
	RetryDelay:             5 * time.Second,
	MaxAge:                 10 * time.Minute,
}

// ConfigFromEnv overrides DefaultConfig with the NOTIFYQUEUE_* variables:
// MAX_RETRIES, MAX_QUEUED_ITEMS_LOW_PRIO, MAX_QUEUED_ITEMS_HIGH_PRIO,
// WORKER_TIMEOUT_MS, RETRY_DELAY_MS and MAX_AGE_MS.
func ConfigFromEnv() (Config, error) {
	config := DefaultConfig

	var retries uint64
	counts := []struct {
		name   string
		bits   int
		target *uint64
	}{
		{"NOTIFYQUEUE_MAX_RETRIES", 16, &retries},
		{"NOTIFYQUEUE_MAX_QUEUED_ITEMS_LOW_PRIO", 64, &config.MaxQueuedItemsLowPrio},
		{"NOTIFYQUEUE_MAX_QUEUED_ITEMS_HIGH_PRIO", 64, &config.MaxQueuedItemsHighPrio},
	}
	retries = uint64(config.MaxRetries)
	for _, c := range counts {
		raw, ok := os.LookupEnv(c.name)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, c.bits)
		if err != nil {
			return config, fmt.Errorf("%s: %w", c.name, err)
		}
		*c.target = v
	}
	config.MaxRetries = uint16(retries)

	durations := []struct {
		name   string
		target *time.Duration
	}{
		{"NOTIFYQUEUE_WORKER_TIMEOUT_MS", &config.WorkerTimeout},
		{"NOTIFYQUEUE_RETRY_DELAY_MS", &config.RetryDelay},
		{"NOTIFYQUEUE_MAX_AGE_MS", &config.MaxAge},
	}
	for _, d := range durations {
		raw, ok := os.LookupEnv(d.name)
		if !ok || raw == "" {
			continue
		}
		ms, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return config, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.target = time.Duration(ms) * time.Millisecond
	}
	return config, nil
}
