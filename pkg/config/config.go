package config

// Package config provides a reusable loader for node configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cascade-chain/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a node. It mirrors the
// structure of the YAML files under cmd/config and is narrowed to the
// surface the node actually exposes: transport, consensus parameters,
// freezer storage, and logging. There is no VM section — the VM is an
// external collaborator reached through a narrow interface, not a
// locally configured execution engine.
type Config struct {
	Network struct {
		ChainID        int      `mapstructure:"chain_id" json:"chain_id"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		P2PPort        int      `mapstructure:"p2p_port" json:"p2p_port"`
		HeartbeatPort  int      `mapstructure:"heartbeat_port" json:"heartbeat_port"`
		GenesisFile    string   `mapstructure:"genesis_file" json:"genesis_file"`
		SeedPeers      []string `mapstructure:"seed_peers" json:"seed_peers"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		BootstrapTimeoutSec int `mapstructure:"bootstrap_timeout_sec" json:"bootstrap_timeout_sec"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		SlotSize          uint64 `mapstructure:"slot_size" json:"slot_size"`
		EpochSize         uint64 `mapstructure:"epoch_size" json:"epoch_size"`
		Beta              int    `mapstructure:"beta" json:"beta"`
		SampleSize        int    `mapstructure:"sample_size" json:"sample_size"`
		StakeWeighted     bool   `mapstructure:"stake_weighted" json:"stake_weighted"`
		TxExpireSeconds   int    `mapstructure:"tx_expire_seconds" json:"tx_expire_seconds"`
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		FreezerPath string `mapstructure:"freezer_path" json:"freezer_path"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	StatusAPI struct {
		Enabled    bool   `mapstructure:"enabled" json:"enabled"`
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"status_api" json:"status_api"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	// A missing .env is not an error — most deployments configure purely
	// through YAML and environment variables already present in the
	// process environment.
	_ = godotenv.Load(".env")

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CASCADE_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CASCADE_ENV", ""))
}
