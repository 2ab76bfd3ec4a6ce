package config

import (
	"log"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 全局配置结构
// 商品目录、储值方案等均为启动时一次性载入的静态配置，
// 以不可变对象注入各组件，不做进程级全局状态
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Shop     ShopConfig     `mapstructure:"shop"`
	Deposit  DepositConfig  `mapstructure:"deposit"`
	AdminAPI AdminAPIConfig `mapstructure:"admin_api"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers       []string         `mapstructure:"brokers"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
	MaxRetryCount int              `mapstructure:"max_retry_count"` // 消息重发上限
}

type KafkaTopicConfig struct {
	OrderNotify   string `mapstructure:"order_notify"`
	DepositNotify string `mapstructure:"deposit_notify"`
	RiskNotify    string `mapstructure:"risk_notify"`
}

// RiskConfig 风控阈值与自动处理配置
type RiskConfig struct {
	AutoHandleIntervalMinutes int `mapstructure:"auto_handle_interval_minutes"` // 自动风控扫描周期
	AutoBanDays               int `mapstructure:"auto_ban_days"`                // 自动封禁天数
}

// ShopItem 商品目录条目
type ShopItem struct {
	Name           string          `mapstructure:"name"`
	Price          decimal.Decimal `mapstructure:"price"`
	Description    string          `mapstructure:"description"`
	Category       string          `mapstructure:"category"`
	CommissionRate decimal.Decimal `mapstructure:"commission_rate"` // 工作人员分润比例，如 0.70
	Emoji          string          `mapstructure:"emoji"`
}

type ShopConfig struct {
	Items []ShopItem `mapstructure:"items"`
}

// FindItem 按名称查找商品，目录外商品返回 nil
func (s *ShopConfig) FindItem(name string) *ShopItem {
	for i := range s.Items {
		if s.Items[i].Name == name {
			return &s.Items[i]
		}
	}
	return nil
}

// DepositPlan 储值方案：转账金额 → 实际入账点数（含赠点）
type DepositPlan struct {
	Amount decimal.Decimal `mapstructure:"amount"`
	Points decimal.Decimal `mapstructure:"points"`
}

type DepositConfig struct {
	Plans    []DepositPlan     `mapstructure:"plans"`
	BankInfo map[string]string `mapstructure:"bank_info"` // 转账信息，仅用于展示
	Method   string            `mapstructure:"method"`    // 结算方式标签
}

// BonusPoints 按方案换算入账点数，未匹配任何方案时按 1:1 入账
func (d *DepositConfig) BonusPoints(amount decimal.Decimal) decimal.Decimal {
	for _, plan := range d.Plans {
		if plan.Amount.Equal(amount) {
			return plan.Points
		}
	}
	return amount
}

type AdminAPIConfig struct {
	Token string `mapstructure:"token"` // 管理接口鉴权令牌
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config, viper.DecodeHook(decimalDecodeHook())); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	if config.Risk.AutoHandleIntervalMinutes <= 0 {
		config.Risk.AutoHandleIntervalMinutes = 10
	}
	if config.Risk.AutoBanDays <= 0 {
		config.Risk.AutoBanDays = 7
	}
	if config.Kafka.MaxRetryCount <= 0 {
		config.Kafka.MaxRetryCount = 5
	}

	return config
}

// decimalDecodeHook 支持把 yaml 中的数字/字符串解析为 decimal.Decimal
func decimalDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(decimal.Decimal{}) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(v)
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case float64:
			return decimal.NewFromFloat(v), nil
		default:
			return data, nil
		}
	}
}
