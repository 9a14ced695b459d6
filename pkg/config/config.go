package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig     `mapstructure:"app"`
	DB     DBConfig      `mapstructure:"db"`
	Redis  RedisConfig   `mapstructure:"redis"`
	Kafka  KafkaConfig   `mapstructure:"kafka"`
	Worker WorkerConfig  `mapstructure:"worker"`
	Wallet WalletConfig  `mapstructure:"wallet"`
	Chains []ChainConfig `mapstructure:"chains"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	GrpcPort string `mapstructure:"grpc_port"`
}

type DBConfig struct {
	Driver   string `mapstructure:"driver"` // "postgres" or "memory"
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis", "kafka" or "" (关闭事件投递)
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type WorkerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
}

type WalletConfig struct {
	KeystorePath   string        `mapstructure:"keystore_path"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DeviceTimeout  time.Duration `mapstructure:"device_timeout"`
	AutoLock       time.Duration `mapstructure:"auto_lock"` // 0 表示不自动锁定
	// DevBlockTxSend 仅在 development 环境生效 (WALLET_DEV_BLOCK_TX_SEND=true)
	DevBlockTxSend bool `mapstructure:"dev_block_tx_send"`
}

type ChainConfig struct {
	ID     uint64 `mapstructure:"id"`
	Name   string `mapstructure:"name"`
	RpcUrl string `mapstructure:"rpc_url"`
}

// BlockTxSend reports whether the development kill switch is active.
func (c *Config) BlockTxSend() bool {
	return c.App.Env == "development" && c.Wallet.DevBlockTxSend
}

// RpcEndpoints 返回 chainID -> rpc_url 映射
func (c *Config) RpcEndpoints() map[uint64]string {
	out := make(map[uint64]string, len(c.Chains))
	for _, ch := range c.Chains {
		out[ch.ID] = ch.RpcUrl
	}
	return out
}

var Global Config

func Init() {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Fatal error config file: %s \n", err)
	}
	Global = *cfg
	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load reads config.yaml (if any) plus environment overrides into a fresh Config.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// 环境变量设置
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Printf("Warning: Config file not found, using defaults and environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8080")
	v.SetDefault("app.grpc_port", "50051")

	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "wallet_user")
	v.SetDefault("db.password", "wallet_password")
	v.SetDefault("db.name", "wallet_db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.mq_type", "")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})

	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.concurrency", 5)

	v.SetDefault("wallet.keystore_path", "vault.json")
	v.SetDefault("wallet.request_timeout", 30*time.Second)
	v.SetDefault("wallet.device_timeout", 60*time.Second)
	v.SetDefault("wallet.auto_lock", 15*time.Minute)
	v.SetDefault("wallet.dev_block_tx_send", false)
}
