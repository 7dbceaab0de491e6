package bootstrap

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"storefront/internal/pkg/logger"
)

// BreakerSettings mirrors breaker.Config in plain YAML-friendly fields.
type BreakerSettings struct {
	TimeoutMs                int `yaml:"timeoutMs"`
	ErrorThresholdPercentage int `yaml:"errorThresholdPercentage"`
	ResetTimeoutMs           int `yaml:"resetTimeoutMs"`
	RollingWindowMs          int `yaml:"rollingWindowMs"`
	MinRequests              int `yaml:"minRequests"`
}

type Config struct {
	Infra struct {
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		MySQL struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Nacos struct {
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
	} `yaml:"infra"`

	Order struct {
		TaxRate        float64 `yaml:"taxRate"`
		ShippingFee    float64 `yaml:"shippingFee"`
		PaymentEpsilon float64 `yaml:"paymentEpsilon"`
	} `yaml:"order"`

	Idempotency struct {
		Retention     time.Duration `yaml:"retention"`
		SweepInterval time.Duration `yaml:"sweepInterval"`
	} `yaml:"idempotency"`

	// Breakers holds per-operation circuit settings, keyed by operation
	// name. The "default" entry backfills unset operations.
	Breakers map[string]BreakerSettings `yaml:"breakers"`
}

var (
	configOnce sync.Once
	current    Config
)

// GetCurrentConfig loads the config file named by CONFIG_PATH on first use
// and returns the process-wide configuration.
func GetCurrentConfig() *Config {
	configOnce.Do(func() {
		current = defaults()
		path := os.Getenv("CONFIG_PATH")
		if path == "" {
			logger.L().Warn().Msg("CONFIG_PATH not set, using built-in defaults")
			return
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.L().Fatal().Err(err).Str("path", path).Msg("cannot read config file")
		}
		if err := yaml.Unmarshal(raw, &current); err != nil {
			logger.L().Fatal().Err(err).Str("path", path).Msg("cannot parse config file")
		}
		applyEnvOverrides(&current)
	})
	return &current
}

func defaults() Config {
	var c Config
	c.Infra.Kafka.Brokers = []string{"localhost:9092"}
	c.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	c.Infra.Redis.Addr = "localhost:6379"
	c.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	c.Infra.Nacos.ServerAddrs = "localhost:8848"
	c.Infra.Nacos.Group = "DEFAULT_GROUP"
	c.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	c.Order.TaxRate = 0.10
	c.Order.ShippingFee = 5.0
	c.Order.PaymentEpsilon = 0.01
	c.Idempotency.Retention = 48 * time.Hour
	c.Idempotency.SweepInterval = time.Hour
	c.Breakers = map[string]BreakerSettings{
		"default": {
			TimeoutMs:                5000,
			ErrorThresholdPercentage: 50,
			ResetTimeoutMs:           30000,
			RollingWindowMs:          10000,
			MinRequests:              5,
		},
	}
	return c
}

// BreakerFor returns the settings for a named operation, falling back to the
// "default" entry.
func (c *Config) BreakerFor(operation string) BreakerSettings {
	if s, ok := c.Breakers[operation]; ok {
		return s
	}
	return c.Breakers["default"]
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Infra.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Infra.Redis.Addr = v
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		c.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		c.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		c.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		c.Infra.Nacos.Group = v
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		c.Infra.Jaeger.Endpoint = v
	}
}
