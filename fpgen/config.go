package fpgen

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// RuntimeConfig holds the paths and generator defaults this package
// needs at process start. It follows the teacher's config-loading style
// (gopkg.in/ini.v1, tagged struct, manual post-parse validation) but is
// much smaller: this package has no training/evolution parameters.
type RuntimeConfig struct {
	NetworkPath    string `ini:"network_path"`
	ValuesJSONPath string `ini:"values_json_path"`
	ValuesDatPath  string `ini:"values_dat_path"`
	DefaultStrict  bool   `ini:"default_strict"`
	DefaultFlatten bool   `ini:"default_flatten"`
}

func defaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		NetworkPath:    "fingerprint-network.json",
		ValuesJSONPath: "values.json",
		ValuesDatPath:  "values.dat",
		DefaultStrict:  true,
		DefaultFlatten: false,
	}
}

// LoadRuntimeConfig loads configuration from an INI file. Unlike the
// network/value-store files, an absent config file is not an error: this
// package works from compiled-in defaults (the CLI/config-file layer is
// a collaborator concern per spec.md §1).
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	cfg := defaultRuntimeConfig()

	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}

	iniFile, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", path, err)
	}

	section := iniFile.Section("fpgen")
	if err := section.MapTo(cfg); err != nil {
		return nil, fmt.Errorf("failed to map [fpgen] section: %w", err)
	}

	// Manual bool re-parse workaround, same as the teacher's config
	// loader: MapTo occasionally mishandles inline-commented bool values.
	if k, err := section.GetKey("default_strict"); err == nil {
		cfg.DefaultStrict, _ = k.Bool()
	}
	if k, err := section.GetKey("default_flatten"); err == nil {
		cfg.DefaultFlatten, _ = k.Bool()
	}

	cfg.NetworkPath = cleanIniString(cfg.NetworkPath)
	cfg.ValuesJSONPath = cleanIniString(cfg.ValuesJSONPath)
	cfg.ValuesDatPath = cleanIniString(cfg.ValuesDatPath)

	if cfg.NetworkPath == "" {
		return nil, fmt.Errorf("config error: network_path must be set")
	}
	if cfg.ValuesJSONPath == "" {
		return nil, fmt.Errorf("config error: values_json_path must be set")
	}
	if cfg.ValuesDatPath == "" {
		return nil, fmt.Errorf("config error: values_dat_path must be set")
	}

	return cfg, nil
}

// cleanIniString removes inline comments and trims whitespace, same
// behavior as the teacher's neat/config.go helper of the same name.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
