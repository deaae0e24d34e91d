package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/condobill/condobill/internal/types"
)

type Configuration struct {
	Deployment    DeploymentConfig    `validate:"required"`
	Logging       LoggingConfig       `validate:"required"`
	DynamoDB      DynamoDBConfig      `validate:"required"`
	Backup        BackupConfig        `validate:"required"`
	Scheduler     SchedulerConfig     `validate:"required"`
	ExchangeRates ExchangeRatesConfig `validate:"required"`
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type DynamoDBConfig struct {
	Region string
	Table  string
	// PoolSize bounds concurrently active scoped handles
	PoolSize int
	// BatchConcurrency bounds in-flight chunks in the batch processor;
	// zero means PoolSize / 2
	BatchConcurrency int
}

type BackupConfig struct {
	Enabled   bool
	Region    string
	Bucket    string
	KeyPrefix string
}

type SchedulerConfig struct {
	// LocalHour is the Cancun-local hour the nightly run starts at
	LocalHour      int
	BackupTimeout  time.Duration
	PenaltyTimeout time.Duration
	RatesTimeout   time.Duration
}

type ExchangeRatesConfig struct {
	BanxicoToken string
	OXRAppID     string
	// SecondaryTable, when set, receives a synced copy of the day's rates
	SecondaryTable string
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/condobill")

	v.SetEnvPrefix("CONDOBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeLocal))
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("dynamodb.poolsize", 100)
	v.SetDefault("scheduler.localhour", 3)
	v.SetDefault("scheduler.backuptimeout", 8*time.Minute)
	v.SetDefault("scheduler.penaltytimeout", 1*time.Minute)
	v.SetDefault("scheduler.ratestimeout", 2*time.Minute)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// and tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		DynamoDB:   DynamoDBConfig{PoolSize: 100},
		Scheduler: SchedulerConfig{
			LocalHour:      3,
			BackupTimeout:  8 * time.Minute,
			PenaltyTimeout: 1 * time.Minute,
			RatesTimeout:   2 * time.Minute,
		},
	}
}
