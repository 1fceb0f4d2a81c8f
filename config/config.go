// Package config loads terminal configuration from file and
// environment. Env var overrides use prefix OTCDESK_.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"github.com/otcdesk/otcdesk/domain"
)

// Load reads configuration from an optional TOML file and env vars,
// producing the engine config with defaults applied.
func Load() (*domain.Config, error) {
	v := viper.New()

	v.SetDefault("name", "otcdesk")
	v.SetDefault("port", 7140)
	v.SetDefault("verify_threshold_xbt", int64(0))
	v.SetDefault("journal.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "otcdesk", "journal.db"))
	v.SetDefault("journal.migrations", defaultMigrationsPath())
	v.SetDefault("bridge.req_endpoint", "tcp://127.0.0.1:7150")
	v.SetDefault("bridge.sub_endpoint", "tcp://127.0.0.1:7151")
	v.SetDefault("public.subs", []string{})
	v.SetDefault("verbose", true)
	v.SetDefault("log_level", "DEBUG")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("OTCDESK_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "otcdesk"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("OTCDESK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// config file is optional
	_ = v.ReadInConfig()

	name := v.GetString("name")
	port := v.GetInt("port")
	hostname := fmt.Sprintf("tcp://127.0.0.1:%d", port)

	cfg := &domain.Config{
		Name:               name,
		ContactID:          v.GetString("contact_id"),
		Port:               port,
		ContactEndpoint:    hostname,
		PublicPubEndpoint:  fmt.Sprintf("tcp://127.0.0.1:%d", port+1),
		PublicSubs:         v.GetStringSlice("public.subs"),
		BridgeReqEndpoint:  v.GetString("bridge.req_endpoint"),
		BridgeSubEndpoint:  v.GetString("bridge.sub_endpoint"),
		VerifyThresholdXBT: v.GetInt64("verify_threshold_xbt"),
		JournalPath:        v.GetString("journal.path"),
		JournalMigrations:  v.GetString("journal.migrations"),
		Timeouts:           domain.DefaultTimeouts(),
		Verbose:            v.GetBool("verbose"),
		LogLevel:           v.GetString("log_level"),
	}

	if cfg.ContactID == `` {
		cfg.ContactID = name
	}

	return cfg, nil
}

// defaultMigrationsPath anchors the bundled migrations to this source
// tree so the terminal starts from any working directory.
func defaultMigrationsPath() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return `journal/migrations`
	}
	return filepath.Join(filepath.Dir(file), `..`, `journal`, `migrations`)
}
