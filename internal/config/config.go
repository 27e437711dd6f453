// Package config loads broker.conf from the current working directory
// and overlays it with BROKER_* environment variables, mirroring the
// teacher's globals.go/main.go pattern of package-level config vars
// populated from env at startup, generalized into a small loader so it
// isn't scattered across main().
package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// Config holds the settings spec.md §6 names under "CLI / environment".
type Config struct {
	ConsoleVerbosity string
	FileVerbosity    string
	MetricsPort      int // 0 means disabled
	AdminPort        int // 0 means disabled

	RecordingDirectory    string
	OutputGeneratorFileCap int

	// raw carries every key=value pair seen in broker.conf, for settings
	// this struct doesn't promote to a named field.
	raw map[string]string
}

const confFile = "broker.conf"

// Load reads broker.conf (unless ignore_broker_conf is set in the
// environment or the file itself) and overlays BROKER_* env vars, which
// always take precedence over the file.
func Load() (*Config, error) {
	cfg := &Config{raw: map[string]string{}}

	if os.Getenv("ignore_broker_conf") == "" {
		if err := cfg.loadFile(confFile); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.ConsoleVerbosity = cfg.stringOpt("BROKER_CONSOLE_VERBOSITY", "console_verbosity", "info")
	cfg.FileVerbosity = cfg.stringOpt("BROKER_FILE_VERBOSITY", "file_verbosity", "info")
	cfg.MetricsPort = cfg.intOpt("BROKER_METRICS_PORT", "metrics_port", 0)
	cfg.AdminPort = cfg.intOpt("BROKER_ADMIN_PORT", "admin_port", 0)
	cfg.RecordingDirectory = cfg.stringOpt("BROKER_RECORDING_DIRECTORY", "recording_directory", "")
	cfg.OutputGeneratorFileCap = cfg.intOpt("BROKER_OUTPUT_GENERATOR_FILE_CAP", "output_generator_file_cap", 0)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "ignore_broker_conf" {
			c.raw = map[string]string{}
			return nil
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		c.raw[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return scanner.Err()
}

func (c *Config) stringOpt(envVar, fileKey, def string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if v, ok := c.raw[fileKey]; ok {
		return v
	}
	return def
}

func (c *Config) intOpt(envVar, fileKey string, def int) int {
	s := c.stringOpt(envVar, fileKey, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
