package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	validator "gopkg.in/go-playground/validator.v9"
)

const (
	StorageDriverGCS = "gcs"
	StorageDriverS3  = "s3"

	AuditDriverSQLite   = "sqlite"
	AuditDriverDynamoDB = "dynamodb"
)

type RelayConfig struct {
	Redis        string             `json:"redis" validate:"required"`
	Queue        string             `json:"queue"`
	Relay        RelaySettings      `json:"relay"`
	Source       SourceConfig       `json:"source"`
	Storage      StorageConfig      `json:"storage"`
	Mail         MailConfig         `json:"mail"`
	Notification NotificationConfig `json:"notification"`
	Audit        AuditConfig        `json:"audit"`
	Logging      LoggingConfig      `json:"logging"`
	Monitoring   MonitoringConfig   `json:"monitoring"`
	IsDev        bool               `json:"is_dev"`
}

type RelaySettings struct {
	Address                  string `json:"address"`
	ConsolidateNotifications bool   `json:"consolidate_notifications"`
}

type SourceConfig struct {
	TimeoutSeconds int   `json:"timeout_seconds"`
	MaxBytes       int64 `json:"max_bytes"`
}

type StorageConfig struct {
	Driver            string `json:"driver" validate:"required,oneof=gcs s3"`
	Bucket            string `json:"bucket" validate:"required"`
	ServiceAccountKey string `json:"service_account_key"` // raw JSON, gcs only
	Region            string `json:"region"`              // s3 only
}

type MailConfig struct {
	APIKey string `json:"api_key" validate:"required"`
	Domain string `json:"domain" validate:"required"`
	Sender string `json:"sender" validate:"required"` // "Relay <relay@example.org>"
}

type NotificationConfig struct {
	WebhookURL string `json:"webhook_url"`
}

type AuditConfig struct {
	Driver     string `json:"driver" validate:"required,oneof=sqlite dynamodb"`
	Table      string `json:"table" validate:"required"`
	DBPath     string `json:"db_path"`
	MaxRecords int    `json:"max_records"`
	Region     string `json:"region"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
}

type MonitoringConfig struct {
	Enabled           bool `json:"enabled"`
	HeartbeatInterval int  `json:"heartbeat_interval"`
	InstanceTimeout   int  `json:"instance_timeout"`
}

// envOverrides are the deployment variables the relay was historically
// configured with. Any non-empty value wins over the yaml file.
type envOverrides struct {
	BucketName           string `envconfig:"BUCKET_NAME"`
	GCPServiceAccountKey string `envconfig:"GCP_SERVICE_ACCOUNT_KEY"`
	MailgunAPIKey        string `envconfig:"MAILGUN_API_KEY"`
	MailgunDomain        string `envconfig:"MAILGUN_DOMAIN"`
	TableName            string `envconfig:"TABLE_NAME"`
	RedisURL             string `envconfig:"REDIS_URL"`
	AWSRegion            string `envconfig:"AWS_REGION"`
	WebhookURL           string `envconfig:"NOTIFICATION_WEBHOOK_URL"`
}

var configPaths = []string{
	"/etc/submission-relay/config.yml",
	"../../utils/config.yml",
	"./utils/config.yml",
}

// LoadConfig load relay config from file, .env and environment
func LoadConfig() (config RelayConfig, err error) {
	// .env is optional
	_ = godotenv.Load()

	isDev := os.Getenv("DEV") == "1"
	yamlFile, err := ioutil.ReadFile(os.Getenv("RELAY_CONFIG_PATH"))
	if err != nil {
		// load from predefined configPaths when no RELAY_CONFIG_PATH set
		for _, path := range configPaths {
			yamlFile, err = ioutil.ReadFile(path)
			if err == nil {
				break
			}
		}
		if err != nil {
			return config, fmt.Errorf("no config file found: %w", err)
		}
	}

	config, err = Parse(yamlFile)
	if err != nil {
		return
	}
	config.IsDev = isDev

	if err = ApplyEnv(&config); err != nil {
		return
	}

	if isDev && config.Audit.DBPath != "" {
		cwd, _ := os.Getwd()
		config.Audit.DBPath = strings.ReplaceAll(config.Audit.DBPath, "/var/lib/", cwd+"/tmp/")
	}

	err = Validate(config)
	return
}

// Parse decodes yaml and fills defaults. It does not validate.
func Parse(yamlFile []byte) (config RelayConfig, err error) {
	err = yaml.Unmarshal(yamlFile, &config)
	if err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}
	config.setDefaults()
	return
}

// ApplyEnv overlays environment variables on top of the parsed file.
func ApplyEnv(config *RelayConfig) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	override(&config.Storage.Bucket, env.BucketName)
	override(&config.Storage.ServiceAccountKey, env.GCPServiceAccountKey)
	override(&config.Mail.APIKey, env.MailgunAPIKey)
	override(&config.Mail.Domain, env.MailgunDomain)
	override(&config.Audit.Table, env.TableName)
	override(&config.Redis, env.RedisURL)
	override(&config.Storage.Region, env.AWSRegion)
	override(&config.Audit.Region, env.AWSRegion)
	override(&config.Notification.WebhookURL, env.WebhookURL)
	return nil
}

// Validate checks required fields and driver specific settings.
func Validate(config RelayConfig) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return err
	}
	if config.Storage.Driver == StorageDriverGCS && config.Storage.ServiceAccountKey == "" {
		return fmt.Errorf("storage.service_account_key is required for the gcs driver")
	}
	if config.Storage.Driver == StorageDriverS3 && config.Storage.Region == "" {
		return fmt.Errorf("storage.region is required for the s3 driver")
	}
	if config.Audit.Driver == AuditDriverSQLite && config.Audit.DBPath == "" {
		return fmt.Errorf("audit.db_path is required for the sqlite driver")
	}
	if config.Audit.Driver == AuditDriverDynamoDB && config.Audit.Region == "" {
		return fmt.Errorf("audit.region is required for the dynamodb driver")
	}
	return nil
}

func (c *RelayConfig) setDefaults() {
	if c.Queue == "" {
		c.Queue = "submission-relay"
	}
	if c.Relay.Address == "" {
		c.Relay.Address = ":8083"
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = 60
	}
	if c.Source.MaxBytes <= 0 {
		c.Source.MaxBytes = 256 << 20
	}
	if c.Audit.MaxRecords <= 0 {
		c.Audit.MaxRecords = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Monitoring.HeartbeatInterval <= 0 {
		c.Monitoring.HeartbeatInterval = 30
	}
	if c.Monitoring.InstanceTimeout <= 0 {
		c.Monitoring.InstanceTimeout = 90
	}
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
