package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoginLimitConfig bounds failed login attempts per identity inside a
// trailing window.  Backend selects where attempt timestamps live:
// "memory" keeps them in-process, "redis" shares them across replicas.
type LoginLimitConfig struct {
	Window  time.Duration `yaml:"window"`
	Limit   int           `yaml:"limit"`
	Backend string        `yaml:"backend"`
	Prefix  string        `yaml:"prefix"`
}

func defaultLoginLimit() LoginLimitConfig {
	return LoginLimitConfig{
		Window:  15 * time.Minute,
		Limit:   5,
		Backend: "memory",
		Prefix:  "login",
	}
}

func loadLoginLimit(def LoginLimitConfig) LoginLimitConfig {
	def.Window = envDur("LOGIN_WINDOW", def.Window)
	def.Limit = envInt("LOGIN_LIMIT", def.Limit)
	def.Backend = strings.ToLower(envStr("LOGIN_LIMITER", def.Backend))
	def.Prefix = envStr("LOGIN_LIMIT_PREFIX", def.Prefix)
	if def.Backend != "redis" {
		def.Backend = "memory"
	}
	return def
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

// envList splits a comma separated variable, dropping blanks.
func envList(k string, d []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return d
	}
	return out
}
