package config

import (
	"os"
	"strings"
	"time"
)

// MergeRequireExpectedDateDefault is the default for MergeOptions.RequireExpectedDateMatch
// when a caller does not decide explicitly.
//
// Set via env:
// - MERGE_REQUIRE_EXPECTED_DATE=false
func MergeRequireExpectedDateDefault() bool {
	return boolFromEnv("MERGE_REQUIRE_EXPECTED_DATE", true)
}

// MergeRedisLockEnabled guards merges with a redislock per purchase order id
// on top of the row locks taken inside the transaction.
//
// Set via env:
// - MERGE_REDIS_LOCK=true
func MergeRedisLockEnabled() bool {
	return boolFromEnv("MERGE_REDIS_LOCK", false)
}

// MergeEventsEnabled controls whether a merge writes an outbox row for Pub/Sub.
//
// Set via env:
// - MERGE_EVENTS=false
func MergeEventsEnabled() bool {
	return boolFromEnv("MERGE_EVENTS", true)
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return def
	}
}

type MergeOutboxRetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// GetMergeOutboxRetryConfig reads the publish retry policy for merge events.
//
// Set via env:
// - MERGE_OUTBOX_MAX_ATTEMPTS (default 20)
// - MERGE_OUTBOX_BASE_BACKOFF_SECONDS (default 5)
// - MERGE_OUTBOX_MAX_BACKOFF_SECONDS (default 600)
func GetMergeOutboxRetryConfig() MergeOutboxRetryConfig {
	return MergeOutboxRetryConfig{
		MaxAttempts: intFromEnv("MERGE_OUTBOX_MAX_ATTEMPTS", 20),
		BaseBackoff: time.Duration(intFromEnv("MERGE_OUTBOX_BASE_BACKOFF_SECONDS", 5)) * time.Second,
		MaxBackoff:  time.Duration(intFromEnv("MERGE_OUTBOX_MAX_BACKOFF_SECONDS", 600)) * time.Second,
	}
}
