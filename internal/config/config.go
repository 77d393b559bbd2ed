// Package config loads the dotted configuration keys of spec.md §6
// from a YAML file and applies environment-variable overrides on top,
// the same two-layer approach the teacher applies informally in
// control_plane/main.go (os.Getenv reads with hardcoded fallbacks) —
// generalized here into a single loader shared by cmd/plant and
// cmd/admin instead of being repeated ad hoc at each call site.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nic0-o1/DPS-DESM/internal/rpcerr"
)

// Plant holds the configuration of a single power-plant process.
type Plant struct {
	PlantID int `yaml:"plant.id"`
	Port    int `yaml:"plant.port"`

	AdminBaseURL string `yaml:"admin.server.base-url"`

	BrokerURL            string `yaml:"mqtt.broker.url"`
	EnergyRequestTopic   string `yaml:"mqtt.topic.energy-requests"`
	PollutionPublishTopic string `yaml:"mqtt.topic.pollution-publish"`

	PriceMin float64 `yaml:"price.min"`
	PriceMax float64 `yaml:"price.max"`
}

// Admin holds the configuration of the administration HTTP service.
type Admin struct {
	ListenAddr string `yaml:"admin.listen-addr"`
}

const (
	defaultPriceMin = 0.1
	defaultPriceMax = 0.9
)

// LoadPlant reads a YAML file at path (if non-empty and present) and
// then applies environment overrides, returning rpcerr.ConfigurationMissing
// if plant.id, plant.port, admin.server.base-url, or mqtt.broker.url
// remain unset afterward.
func LoadPlant(path string) (*Plant, error) {
	cfg := &Plant{
		EnergyRequestTopic:    "energy/requests",
		PollutionPublishTopic: "pollution/readings",
		PriceMin:              defaultPriceMin,
		PriceMax:              defaultPriceMax,
	}

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyPlantEnvOverrides(cfg)

	if cfg.PlantID == 0 {
		return nil, &rpcerr.ConfigurationMissing{Key: "plant.id"}
	}
	if cfg.Port == 0 {
		return nil, &rpcerr.ConfigurationMissing{Key: "plant.port"}
	}
	if strings.TrimSpace(cfg.AdminBaseURL) == "" {
		return nil, &rpcerr.ConfigurationMissing{Key: "admin.server.base-url"}
	}
	if strings.TrimSpace(cfg.BrokerURL) == "" {
		return nil, &rpcerr.ConfigurationMissing{Key: "mqtt.broker.url"}
	}
	return cfg, nil
}

func applyPlantEnvOverrides(cfg *Plant) {
	if v := os.Getenv("PLANT_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PlantID = n
		}
	}
	if v := os.Getenv("PLANT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("ADMIN_BASE_URL"); v != "" {
		cfg.AdminBaseURL = v
	}
	if v := os.Getenv("MQTT_BROKER_URL"); v != "" {
		cfg.BrokerURL = v
	}
	if v := os.Getenv("MQTT_TOPIC_ENERGY_REQUESTS"); v != "" {
		cfg.EnergyRequestTopic = v
	}
	if v := os.Getenv("MQTT_TOPIC_POLLUTION_PUBLISH"); v != "" {
		cfg.PollutionPublishTopic = v
	}
	if v := os.Getenv("PRICE_MIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PriceMin = f
		}
	}
	if v := os.Getenv("PRICE_MAX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PriceMax = f
		}
	}
}

// LoadAdmin reads the administration service's configuration.
func LoadAdmin(path string) (*Admin, error) {
	cfg := &Admin{ListenAddr: ":8080"}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}
	if v := os.Getenv("ADMIN_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	return cfg, nil
}
