// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config 聚合了所有服务共享的基础设施配置。
// 默认从 configs/config.yaml 加载，可通过环境变量 CONFIG_PATH 覆盖路径，
// 关键字段支持环境变量覆盖，便于容器化部署。
type Config struct {
	Infra struct {
		MySQL struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Database string `yaml:"database"`
		} `yaml:"mysql"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers          []string `yaml:"brokers"`
			OrderEventTopic  string   `yaml:"order_event_topic"`
			AllocationTopic  string   `yaml:"allocation_topic"`
			ConsumerGroup    string   `yaml:"consumer_group"`
			ConsumerWorkers  int      `yaml:"consumer_workers"`
			MaxRetryAttempts int      `yaml:"max_retry_attempts"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`

	Services struct {
		LoyaltyBaseURL  string `yaml:"loyalty_base_url"`
		ReferralBaseURL string `yaml:"referral_base_url"`
	} `yaml:"services"`

	Campaign struct {
		// FireAllMatches 控制同一订单上多条规则命中时的行为：
		// false（默认）只有优先级最高的规则产生发放，其余命中只记审计日志；
		// true 则所有命中的规则都发放。
		FireAllMatches    bool `yaml:"fire_all_matches"`
		ProcessingTimeout int  `yaml:"processing_timeout_seconds"`
	} `yaml:"campaign"`

	Referral struct {
		ValidityDays  int `yaml:"validity_days"`
		SweepInterval int `yaml:"sweep_interval_seconds"`
		// 推荐完成时双方的固定奖励积分
		ReferrerPoints int64 `yaml:"referrer_points"`
		RefereePoints  int64 `yaml:"referee_points"`
	} `yaml:"referral"`
}

var (
	currentConfig *Config
	configOnce    sync.Once
)

// Init 加载全局配置，服务 main 函数应最先调用
func Init() {
	configOnce.Do(func() {
		path := getEnv("CONFIG_PATH", "configs/config.yaml")
		cfg := defaultConfig()

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("WARN: cannot read config file %s: %v. Using defaults and environment overrides.", path, err)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("FATAL: invalid config file %s: %v", path, err)
		}

		applyEnvOverrides(cfg)
		currentConfig = cfg
	})
}

// GetCurrentConfig 返回已加载的全局配置
func GetCurrentConfig() *Config {
	if currentConfig == nil {
		Init()
	}
	return currentConfig
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Infra.MySQL.Host = "localhost"
	cfg.Infra.MySQL.Port = 3306
	cfg.Infra.MySQL.User = "root"
	cfg.Infra.MySQL.Database = "lumen"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.OrderEventTopic = "commerce.order.events"
	cfg.Infra.Kafka.AllocationTopic = "loyalty.reward.allocated"
	cfg.Infra.Kafka.ConsumerGroup = "campaign-engine"
	cfg.Infra.Kafka.ConsumerWorkers = 8
	cfg.Infra.Kafka.MaxRetryAttempts = 5
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	cfg.Services.LoyaltyBaseURL = "http://localhost:8083"
	cfg.Services.ReferralBaseURL = "http://localhost:8082"
	cfg.Campaign.ProcessingTimeout = 10
	cfg.Referral.ValidityDays = 90
	cfg.Referral.SweepInterval = 3600
	cfg.Referral.ReferrerPoints = 500
	cfg.Referral.RefereePoints = 200
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_HOST"); v != "" {
		cfg.Infra.MySQL.Host = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		cfg.Infra.MySQL.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = splitAndTrim(v)
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = splitAndTrim(v)
	}
	if v := os.Getenv("FIRE_ALL_MATCHES"); v == "true" {
		cfg.Campaign.FireAllMatches = true
	}
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
