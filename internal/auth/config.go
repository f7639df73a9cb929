package auth

import (
	"fmt"

	"github.com/spf13/viper"
)

// minSecretLength минимальная длина ключа HS256
const minSecretLength = 32

type Config struct {
	Secret string `mapstructure:"JWT_SECRET"`
	// Issuer необязателен, пустой не проверяется
	Issuer string `mapstructure:"JWT_ISSUER"`
	// ServiceSubjects значения sub служебных клиентов, которым доступен
	// gRPC API леджера. Токены пользователей туда не пускаются.
	ServiceSubjects []string `mapstructure:"JWT_SERVICE_SUBJECTS"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("JWT_SERVICE_SUBJECTS")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables for auth: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	return nil
}
