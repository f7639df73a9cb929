package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"Server"`
	Database   DatabaseConfig   `mapstructure:"Database"`
	Redis      RedisConfig      `mapstructure:"Redis"`
	Accounting AccountingConfig `mapstructure:"Accounting"`
	Log        LogConfig        `mapstructure:"Log"`
}

type ServerConfig struct {
	Port        string `mapstructure:"Port"`
	GRPCPort    string `mapstructure:"GRPCPort"`
	MetricsPort string `mapstructure:"MetricsPort"`
	// UploadRateLimit запросов на загрузку в минуту с одного адреса, 0 отключает
	UploadRateLimit int `mapstructure:"UploadRateLimit"`
}

type DatabaseConfig struct {
	// Driver postgres или sqlite
	Driver   string `mapstructure:"Driver"`
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
	// Path файл базы для sqlite
	Path string `mapstructure:"Path"`
}

// RedisConfig кеш отчетов, пустой Addr отключает кеш
type RedisConfig struct {
	Addr      string        `mapstructure:"Addr"`
	Password  string        `mapstructure:"Password"`
	DB        int           `mapstructure:"DB"`
	ReportTTL time.Duration `mapstructure:"ReportTTL"`
}

type AccountingConfig struct {
	PruneInterval time.Duration `mapstructure:"PruneInterval"`
}

type LogConfig struct {
	Level string `mapstructure:"Level"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	// Устанавливаем файл конфигурации
	v.SetConfigFile(path)

	// Привязываем переменные окружения
	v.BindEnv("Database.Driver", "DATABASE_DRIVER")
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Database.Path", "DATABASE_PATH")
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Server.GRPCPort", "GRPC_PORT")
	v.BindEnv("Server.MetricsPort", "METRICS_PORT")
	v.BindEnv("Server.UploadRateLimit", "UPLOAD_RATE_LIMIT")
	v.BindEnv("Redis.Addr", "REDIS_ADDR")
	v.BindEnv("Redis.Password", "REDIS_PASSWORD")
	v.BindEnv("Redis.DB", "REDIS_DB")
	v.BindEnv("Redis.ReportTTL", "REDIS_REPORT_TTL")
	v.BindEnv("Accounting.PruneInterval", "ACCOUNTING_PRUNE_INTERVAL")
	v.BindEnv("Log.Level", "LOG_LEVEL")

	// Значения по умолчанию
	v.SetDefault("Database.Driver", DriverPostgres)
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.MetricsPort", "9090")
	v.SetDefault("Server.UploadRateLimit", 60)
	v.SetDefault("Redis.ReportTTL", time.Minute)
	v.SetDefault("Accounting.PruneInterval", time.Hour)
	v.SetDefault("Log.Level", "info")

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Database.validate(); err != nil {
		return nil, err
	}
	if cfg.Accounting.PruneInterval <= 0 {
		return nil, fmt.Errorf("accounting prune interval must be positive, got %s", cfg.Accounting.PruneInterval)
	}

	return &cfg, nil
}

func (c *DatabaseConfig) validate() error {
	switch c.Driver {
	case DriverPostgres:
		// Проверяем, что все необходимые поля заполнены
		if c.Host == "" || c.Port == "" || c.User == "" || c.Password == "" || c.Name == "" {
			return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
				c.Host, c.Port, c.User, c.Name)
		}
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("database configuration is incomplete: sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}
