package config

import (
	"os"
	"strconv"

	"github.com/scadaops/windprep/internal/log"
)

// ParseString reads a string from environment variable or returns default value.
func ParseString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// ParseInt reads an integer from environment variable or returns default value.
// It validates the input and falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			logger.Warn().
				Str("key", key).
				Str("value", v).
				Int("default", defaultValue).
				Msg("invalid integer in environment variable, using default")
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// ParseFloat reads a float from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			logger.Warn().
				Str("key", key).
				Str("value", v).
				Float64("default", defaultValue).
				Msg("invalid float in environment variable, using default")
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// ParseBool reads a boolean from environment variable or returns default value.
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn().
				Str("key", key).
				Str("value", v).
				Bool("default", defaultValue).
				Msg("invalid boolean in environment variable, using default")
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// SlurmEnvKeys are batch scheduler variables logged at startup for
// diagnostics. They are never branched on.
var SlurmEnvKeys = []string{
	"SLURM_NTASKS",
	"SLURM_JOB_NUM_NODES",
	"SLURM_GPUS_ON_NODE",
	"SLURM_JOB_GPUS",
	"SLURM_JOB_GRES",
}

// LogSchedulerEnv emits any batch scheduler allocation variables present in
// the environment, informational only.
func LogSchedulerEnv() {
	logger := log.WithComponent("config")
	for _, key := range SlurmEnvKeys {
		if v, ok := os.LookupEnv(key); ok {
			logger.Info().
				Str("key", key).
				Str("value", v).
				Msg("scheduler allocation")
		}
	}
}
