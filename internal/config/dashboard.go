package config

import (
	"time"

	"medresponse/internal/utils"
)

// DashboardConfig tunes the live view pipeline: how long merged entries live
// once their source query stops reporting them, how long enrichment lookups
// may take, and how long cached ambulance reads stay fresh.
type DashboardConfig struct {
	StaleAfter        time.Duration `yaml:"stale_after"`
	LookupTimeout     time.Duration `yaml:"lookup_timeout"`
	AmbulanceCacheTTL time.Duration `yaml:"ambulance_cache_ttl"`
}

func loadDashboardConfig() *DashboardConfig {
	return &DashboardConfig{
		StaleAfter:        getEnvAsDuration("DASHBOARD_STALE_AFTER", utils.DefaultStaleAfter),
		LookupTimeout:     getEnvAsDuration("DASHBOARD_LOOKUP_TIMEOUT", utils.DefaultLookupTimeout),
		AmbulanceCacheTTL: getEnvAsDuration("DASHBOARD_AMBULANCE_CACHE_TTL", utils.AmbulanceCacheTTL),
	}
}
