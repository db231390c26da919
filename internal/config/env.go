package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays LABELD_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = Duration(d)
			}
		}
	}

	setString("LABELD_HTTP_ADDR", &cfg.HTTPAddr)
	setString("LABELD_DATA_DIR", &cfg.DataDir)
	setString("LABELD_STORAGE_FSYNC", &cfg.Storage.Fsync)
	setDuration("LABELD_STORAGE_FSYNC_INTERVAL", &cfg.Storage.FsyncInterval)
	setInt("LABELD_MAX_HOLDERS", &cfg.Labeling.MaxHolders)
	setInt("LABELD_QUORUM", &cfg.Labeling.Quorum)
	setString("LABELD_AFFIRMATIVE", &cfg.Labeling.Affirmative)
	setDuration("LABELD_LEASE_TTL", &cfg.Labeling.LeaseTTL)
	setDuration("LABELD_LEASE_SCAN", &cfg.Labeling.LeaseScan)
	setDuration("LABELD_RESEED_INTERVAL", &cfg.Labeling.ReseedInterval)
	setString("LABELD_CONSENSUS_URL", &cfg.Outbox.ConsensusURL)
	setInt("LABELD_OUTBOX_BUFFER", &cfg.Outbox.Buffer)
	setDuration("LABELD_OUTBOX_TIMEOUT", &cfg.Outbox.Timeout)
	setDuration("LABELD_OUTBOX_MAX_ELAPSED", &cfg.Outbox.MaxElapsed)
	setString("LABELD_LOG_LEVEL", &cfg.Log.Level)
	setString("LABELD_LOG_FORMAT", &cfg.Log.Format)
}
