package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FabricConfig holds the gateway connection settings for one peer.
type FabricConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	GatewayPeer string `mapstructure:"gateway_peer"`
	TLSCertPath string `mapstructure:"tls_cert_path"`
	MSPID       string `mapstructure:"msp_id"`
	CertPath    string `mapstructure:"cert_path"`
	KeyPath     string `mapstructure:"key_path"`
	Channel     string `mapstructure:"channel"`
	Chaincode   string `mapstructure:"chaincode"`
}

// IPFSConfig holds archive storage settings.
type IPFSConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ArchiverConfig holds coordinator run settings.
type ArchiverConfig struct {
	Statuses             []string      `mapstructure:"statuses"`
	WorkerPoolSize       int           `mapstructure:"worker_pool_size"`
	BatchMode            bool          `mapstructure:"batch_mode"`
	Interval             time.Duration `mapstructure:"interval"` // 0 runs once and exits
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	RetryMaxElapsedTime  time.Duration `mapstructure:"retry_max_elapsed_time"`
}

// Config is the full archiver service configuration.
type Config struct {
	Debug    bool           `mapstructure:"debug"`
	Fabric   FabricConfig   `mapstructure:"fabric"`
	IPFS     IPFSConfig     `mapstructure:"ipfs"`
	Archiver ArchiverConfig `mapstructure:"archiver"`
}

// Load reads the archiver configuration from a config file and the
// PROVTRACE_* environment, file values losing to environment values.
func Load(configFile string, envPath string) (*Config, error) {
	v := configureViper(configFile, envPath)

	v.SetDefault("fabric.endpoint", "localhost:7051")
	v.SetDefault("fabric.channel", "mychannel")
	v.SetDefault("fabric.chaincode", "provtrace")
	v.SetDefault("ipfs.api_url", "localhost:5001")
	v.SetDefault("ipfs.timeout", "30s")
	v.SetDefault("archiver.worker_pool_size", 4)
	v.SetDefault("archiver.retry_initial_interval", "2s")
	v.SetDefault("archiver.retry_max_interval", "1m")
	v.SetDefault("archiver.retry_max_elapsed_time", "15m")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Fabric.MSPID == "" || cfg.Fabric.CertPath == "" || cfg.Fabric.KeyPath == "" {
		return nil, fmt.Errorf("fabric.msp_id, fabric.cert_path and fabric.key_path are required")
	}
	return &cfg, nil
}

func configureViper(configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("cmd/archiver/")
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("PROVTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds every config key so viper maps env vars
// onto struct fields even when no config file exists.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"fabric.endpoint",
		"fabric.gateway_peer",
		"fabric.tls_cert_path",
		"fabric.msp_id",
		"fabric.cert_path",
		"fabric.key_path",
		"fabric.channel",
		"fabric.chaincode",
		"ipfs.api_url",
		"ipfs.timeout",
		"archiver.statuses",
		"archiver.worker_pool_size",
		"archiver.batch_mode",
		"archiver.interval",
		"archiver.retry_initial_interval",
		"archiver.retry_max_interval",
		"archiver.retry_max_elapsed_time",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

func loadEnv(envPath string) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load env file %s: %v\n", envPath, err)
		}
		return
	}
	// Best effort: a missing .env is fine
	_ = godotenv.Load()
}
