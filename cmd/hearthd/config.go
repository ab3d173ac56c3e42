package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type ZigbeeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	RTS     bool   `yaml:"rts"`
}

type CloudLockConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIURL    string `yaml:"apiUrl"`
	StreamURL string `yaml:"streamUrl"`
}

type Config struct {
	DataDirectory string          `yaml:"dataDirectory"`
	Zigbee        ZigbeeConfig    `yaml:"zigbee"`
	CloudLock     CloudLockConfig `yaml:"cloudlock"`
}

func defaultConfig() Config {
	return Config{
		DataDirectory: "data",
		Zigbee: ZigbeeConfig{
			Port: "/dev/ttyACM0",
			Baud: 115200,
			RTS:  true,
		},
	}
}

// loadConfig reads the daemon configuration, a missing file yields the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}

		return cfg, fmt.Errorf("failed to read configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	return cfg, nil
}
