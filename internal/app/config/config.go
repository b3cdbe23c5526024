package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string            `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer  HTTPServerConfig  `yaml:"http_server"`
	MongoDB     MongoDBConfig     `yaml:"mongo"`
	Redis       RedisConfig       `yaml:"redis"`
	NATS        NATSConfig        `yaml:"nats"`
	Logger      LoggerConfig      `yaml:"logger"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Ebay        EbayConfig        `yaml:"ebay"`
	Amazon      AmazonConfig      `yaml:"amazon"`
	Valuation   ValuationConfig   `yaml:"valuation"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Sweep       SweepConfig       `yaml:"sweep"`
	StatusCache StatusCacheConfig `yaml:"status_cache"`
}

type HTTPServerConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type MongoDBConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	User     string `yaml:"user" env:"MONGO_USER"`
	Password string `yaml:"password" env:"MONGO_PASSWORD"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"consignment_db"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type NATSConfig struct {
	URL string `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
}

type LoggerConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding   string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
	TimeFormat string `yaml:"time_format" env:"LOG_TIME_FORMAT" env-default:"2006-01-02T15:04:05.000Z07:00"`
}

type SMTPConfig struct {
	Host        string `yaml:"host" env:"SMTP_HOST"`
	Port        int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username    string `yaml:"username" env:"SMTP_USERNAME"`
	Password    string `yaml:"password" env:"SMTP_PASSWORD"`
	SenderEmail string `yaml:"sender_email" env:"SMTP_SENDER_EMAIL"`
	OpsEmail    string `yaml:"ops_email" env:"SMTP_OPS_EMAIL"`
	Encryption  string `yaml:"encryption" env:"SMTP_ENCRYPTION" env-default:"tls"`
	ServerName  string `yaml:"server_name" env:"SMTP_SERVER_NAME"`
}

type EbayConfig struct {
	BaseURL       string `yaml:"base_url" env:"EBAY_BASE_URL" env-default:"https://api.ebay.com"`
	TokenURL      string `yaml:"token_url" env:"EBAY_TOKEN_URL" env-default:"https://api.ebay.com/identity/v1/oauth2/token"`
	ClientID      string `yaml:"client_id" env:"EBAY_CLIENT_ID" env-required:"true"`
	ClientSecret  string `yaml:"client_secret" env:"EBAY_CLIENT_SECRET" env-required:"true"`
	FulfillmentID string `yaml:"fulfillment_policy_id" env:"EBAY_FULFILLMENT_POLICY_ID"`
	PaymentID     string `yaml:"payment_policy_id" env:"EBAY_PAYMENT_POLICY_ID"`
	ReturnID      string `yaml:"return_policy_id" env:"EBAY_RETURN_POLICY_ID"`
	LocationKey   string `yaml:"merchant_location_key" env:"EBAY_MERCHANT_LOCATION_KEY"`
	CategoryID    string `yaml:"category_id" env:"EBAY_CATEGORY_ID" env-default:"6000"`
}

type AmazonConfig struct {
	BaseURL       string `yaml:"base_url" env:"AMAZON_SP_BASE_URL" env-default:"https://sellingpartnerapi-na.amazon.com"`
	TokenURL      string `yaml:"token_url" env:"AMAZON_LWA_TOKEN_URL" env-default:"https://api.amazon.com/auth/o2/token"`
	ClientID      string `yaml:"client_id" env:"AMAZON_LWA_CLIENT_ID" env-required:"true"`
	ClientSecret  string `yaml:"client_secret" env:"AMAZON_LWA_CLIENT_SECRET" env-required:"true"`
	RefreshToken  string `yaml:"refresh_token" env:"AMAZON_LWA_REFRESH_TOKEN" env-required:"true"`
	SellerID      string `yaml:"seller_id" env:"AMAZON_SELLER_ID" env-required:"true"`
	MarketplaceID string `yaml:"marketplace_id" env:"AMAZON_MARKETPLACE_ID" env-default:"ATVPDKIKX0DER"`
	ProductType   string `yaml:"product_type" env:"AMAZON_PRODUCT_TYPE" env-default:"PRODUCT"`
}

type ValuationConfig struct {
	Address string `yaml:"address" env:"VALUATION_ADDRESS" env-required:"true"`
	APIKey  string `yaml:"api_key" env:"VALUATION_API_KEY"`
}

type MarketplaceConfig struct {
	CallTimeout      time.Duration `yaml:"call_timeout" env:"MARKETPLACE_CALL_TIMEOUT" env-default:"15s"`
	TransientRetries int           `yaml:"transient_retries" env:"MARKETPLACE_TRANSIENT_RETRIES" env-default:"2"`
}

type SweepConfig struct {
	Interval  time.Duration `yaml:"interval" env:"SWEEP_INTERVAL" env-default:"10m"`
	BatchSize int           `yaml:"batch_size" env:"SWEEP_BATCH_SIZE" env-default:"100"`
}

type StatusCacheConfig struct {
	TTL time.Duration `yaml:"ttl" env:"STATUS_CACHE_TTL" env-default:"10m"`
}

func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	err := cleanenv.ReadConfig(path, &cfg)
	if err != nil {
		if _, ok := err.(*os.PathError); ok {
			log.Printf("Warning: Config file not found at %s, attempting to load from environment variables only.", path)
			if errEnv := cleanenv.ReadEnv(&cfg); errEnv != nil {
				return nil, errEnv
			}
			return &cfg, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	return cfg
}
