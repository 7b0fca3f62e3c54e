// ABOUTME: Centralized configuration defaults for ttcache
// ABOUTME: Contains magic numbers and hardcoded values for display, storage and sync

package config

import "time"

// HTTP settings
const (
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultConnectTimeout = 300 * time.Millisecond
)

// Sync settings
const (
	DefaultUpdateWindow    = 30 * time.Minute
	DefaultRetainLimit     = 5000
	DefaultHeadlineLimit   = 1000
	DefaultPageSize        = 200
	DefaultFreshMaxAge     = 24 * time.Hour
	DefaultCleanupInterval = 24 * time.Hour
	DefaultSyncInterval    = 5 * time.Minute
	DefaultWorkers         = 4
	DefaultProbeInterval   = 30 * time.Second
)

// Display settings
const (
	DefaultListLimit = 20
	SeparatorWidth   = 60
	DateFormatShort  = "02 Jan 06 15:04 MST"
	DateFormatLong   = "Mon, 02 Jan 2006 15:04 MST"
)

// Storage settings
const (
	DBFilename      = "ttcache.db"
	DefaultDirPerms = 0755
)

// EnvPrefix prefixes every environment override, e.g. TTCACHE_SERVER_URL.
const EnvPrefix = "TTCACHE"
