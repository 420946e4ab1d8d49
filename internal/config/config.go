package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"agentchain/backend/internal/logging"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	Server        struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`
	DB struct {
		Driver      string `mapstructure:"driver"`
		Host        string `mapstructure:"host"`
		Port        int    `mapstructure:"port"`
		User        string `mapstructure:"user"`
		Password    string `mapstructure:"password"`
		Name        string `mapstructure:"name"`
		SSLMode     string `mapstructure:"sslmode"`
		Path        string `mapstructure:"path"`
		AutoMigrate bool   `mapstructure:"auto_migrate"`
	} `mapstructure:"db"`
	AgentChat struct {
		BaseURL        string        `mapstructure:"base_url"`
		ChatPath       string        `mapstructure:"chat_path"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
		ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	} `mapstructure:"agent_chat"`
	Auth struct {
		Issuer          string `mapstructure:"issuer"`
		ClientID        string `mapstructure:"client_id"`
		SwaggerClientID string `mapstructure:"swagger_client_id"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
	Log logging.Config `mapstructure:"log"`
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "DEV")
}

// PostgresDSN returns the keyword/value connection string for pgx.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// LoadConfig loads the configuration from a file and the environment. An
// empty path searches for config.yaml in the working directory and ./config.
// A missing config file is not an error; defaults and environment still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("AGENTCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Auth.Issuer = normalizeIssuer(config.Auth.Issuer)
	if config.Auth.SwaggerClientID == "" {
		config.Auth.SwaggerClientID = config.Auth.ClientID
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "PROD")
	v.SetDefault("dev_mode_bypass", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// execute calls stream every node before responding
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "agentchain")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.path", "agentchain.db")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("agent_chat.base_url", "http://127.0.0.1:8000")
	v.SetDefault("agent_chat.chat_path", "/api/chat")
	v.SetDefault("agent_chat.connect_timeout", 5*time.Second)
	v.SetDefault("agent_chat.read_timeout", 120*time.Second)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.swagger_client_id", "")
	v.SetDefault("tls.enable", false)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// normalizeIssuer strips whitespace and any trailing slash so issuer URLs
// pasted from an identity provider console compare equal to the token's iss.
func normalizeIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
