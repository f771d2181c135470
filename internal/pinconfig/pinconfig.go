// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pinconfig resolves the environment-style configuration
// recognized by both binaries (spec.md §6), with an optional TOML
// overlay in the teacher's style (internal/config's
// "~/.rigrun/config.toml" via github.com/BurntSushi/toml) for operators
// who prefer a file to an environment block. An environment variable,
// when present, always wins over the overlay.
package pinconfig

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// DeploymentDir is the fixed store directory used by release builds.
// Only builds tagged pinauth_debug honor a PIN_DIR override (see
// AllowDirOverride).
const DeploymentDir = "/etc/pin.d"

// OverlayPath is the optional TOML file consulted for values not set
// via environment variables.
const OverlayPath = "/etc/pin.d/pinauth.toml"

// Config holds every knob recognized by spec.md §6.
type Config struct {
	Dir              string `toml:"dir"`
	MinLen           int    `toml:"min_len"`
	MaxLen           int    `toml:"max_len"`
	Threshold        int64  `toml:"threshold"`
	LockoutSecs      int64  `toml:"lockout_secs"`
	WindowSecs       int64  `toml:"window_secs"`
	Scheme           string `toml:"scheme"`
	Argon2MCostKiB   uint32 `toml:"argon2_m_cost"`
	Argon2TCost      uint32 `toml:"argon2_t_cost"`
	Argon2PCost      uint8  `toml:"argon2_p_cost"`
	SyslogFailSample int    `toml:"syslog_fail_sample"`
}

// Default returns spec.md's documented defaults.
func Default() Config {
	return Config{
		Dir:              DeploymentDir,
		MinLen:           4,
		MaxLen:           6,
		Threshold:        5,
		LockoutSecs:      300,
		WindowSecs:       900,
		Scheme:           "sha512-crypt",
		SyslogFailSample: 1,
	}
}

// Load builds the effective configuration: defaults, overlaid by
// OverlayPath if present, overlaid by environment variables (which
// always win, matching the teacher's ApplyEnvOverrides-after-file
// precedence in internal/config.Load).
func Load() Config {
	cfg := Default()
	applyOverlay(&cfg, OverlayPath)
	applyEnv(&cfg)
	return cfg
}

// applyOverlay fills cfg from a TOML file at path, if it exists.
// Decoding errors are ignored: an unreadable or malformed overlay
// leaves defaults in place rather than failing the whole process over
// an optional convenience file.
func applyOverlay(cfg *Config, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_, _ = toml.DecodeFile(path, cfg)
}

// applyEnv applies spec.md §6's environment variables, each of which
// overrides whatever the overlay (or defaults) set.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PIN_DIR"); v != "" {
		cfg.Dir = v
	}
	if v, ok := getInt("PIN_MIN_LEN"); ok {
		cfg.MinLen = v
	}
	if v, ok := getInt("PIN_MAX_LEN"); ok {
		cfg.MaxLen = v
	}
	if v, ok := getInt64("PIN_MAX_FAILS"); ok {
		cfg.Threshold = v
	}
	if v, ok := getInt64("PIN_LOCKOUT_SECS"); ok {
		cfg.LockoutSecs = v
	}
	if v, ok := getInt64("PIN_FAIL_WINDOW"); ok {
		cfg.WindowSecs = v
	}
	if v := os.Getenv("PIN_SCHEME"); v != "" {
		cfg.Scheme = v
	}
	if v, ok := getUint32("PIN_ARGON2_M_COST"); ok {
		cfg.Argon2MCostKiB = v
	}
	if v, ok := getUint32("PIN_ARGON2_T_COST"); ok {
		cfg.Argon2TCost = v
	}
	if v, ok := getUint8("PIN_ARGON2_P_COST"); ok {
		cfg.Argon2PCost = v
	}
	if v, ok := getInt("PIN_SYSLOG_FAIL_SAMPLE"); ok {
		cfg.SyslogFailSample = v
	}
}

// ResolveUsername implements spec.md §4.4 step 2's source preference:
// the host user variable (PAM_USER) is preferred, falling back to the
// session user variable (USER).
func ResolveUsername() string {
	if u := os.Getenv("PAM_USER"); u != "" {
		return u
	}
	return os.Getenv("USER")
}

// NonInteractivePIN returns the Provisioner's non-interactive PIN
// configuration value (spec.md §4.5/§6), in the form "PIN" or
// "PIN:CONFIRM", and whether it was set at all.
func NonInteractivePIN() (string, bool) {
	v, ok := os.LookupEnv("GENPIN_NONINTERACTIVE")
	return v, ok
}

// RequestedDir returns the directory the configuration asks for. Callers
// decide whether to honor it via AllowDirOverride; release builds must
// always use DeploymentDir regardless of this value.
func (c Config) RequestedDir() string {
	if c.Dir == "" {
		return DeploymentDir
	}
	return c.Dir
}

// EffectiveDir applies the PIN_DIR override gate uniformly: release
// builds always resolve to DeploymentDir; pinauth_debug builds honor
// whatever RequestedDir reports, for test isolation (spec.md §9, bullet
// 1; genpin.rs's matching cfg!(debug_assertions) branch).
func (c Config) EffectiveDir() string {
	if AllowDirOverride() {
		return c.RequestedDir()
	}
	return DeploymentDir
}

func getInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getInt64(name string) (int64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getUint32(name string) (uint32, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func getUint8(name string) (uint8, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}
