package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "partner-engine"

	envPrefix = "PARTNER_ENGINE"
)

type Config struct {
	ListenAddr  string          `mapstructure:"listen-addr"`
	DataSource  string          `mapstructure:"data-source"`
	FixtureFile string          `mapstructure:"fixture-file"`
	Database    *DatabaseConfig `mapstructure:"database"`
	Redis       *RedisConfig    `mapstructure:"redis"`
	RabbitMQ    *RabbitMQConfig `mapstructure:"rabbitmq"`
	Vetting     *VettingConfig  `mapstructure:"vetting"`
	Matching    *MatchingConfig `mapstructure:"matching"`
	Outreach    *OutreachConfig `mapstructure:"outreach"`
	HTTP        *HTTPConfig     `mapstructure:"http"`
	AI          *AIConfig       `mapstructure:"ai"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	URLFile  string `mapstructure:"url-file"`
	MaxConns int    `mapstructure:"max-conns"`
}

type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type RabbitMQConfig struct {
	URL        string `mapstructure:"url"`
	URLFile    string `mapstructure:"url-file"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing-key"`
}

type VettingConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe-timeout"`
}

type MatchingConfig struct {
	MaxPartners        int           `mapstructure:"max-partners"`
	Personalize        bool          `mapstructure:"personalize"`
	PersonalizeTimeout time.Duration `mapstructure:"personalize-timeout"`
	DisabledFilters    []string      `mapstructure:"disabled-filters"`
	BlocklistFile      string        `mapstructure:"blocklist-file"`
}

type OutreachConfig struct {
	NotifyTimeout time.Duration `mapstructure:"notify-timeout"`
}

type HTTPConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request-timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "partner-engine vets partner applications and matches partners to client requests",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is partner-engine.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

// setDefaults registers every key so env overrides apply to keys absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen-addr", ":8080")
	v.SetDefault("data-source", "postgres")
	v.SetDefault("fixture-file", "fixtures.yaml")
	v.SetDefault("database.url", "")
	v.SetDefault("database.url-file", "")
	v.SetDefault("database.max-conns", 10)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", time.Hour)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.url-file", "")
	v.SetDefault("rabbitmq.exchange", "partner-engine.notifications")
	v.SetDefault("rabbitmq.routing-key", "email")
	v.SetDefault("vetting.probe-timeout", 10*time.Second)
	v.SetDefault("matching.max-partners", 5)
	v.SetDefault("matching.personalize", true)
	v.SetDefault("matching.personalize-timeout", 10*time.Second)
	v.SetDefault("matching.disabled-filters", []string{})
	v.SetDefault("matching.blocklist-file", "")
	v.SetDefault("outreach.notify-timeout", 10*time.Second)
	v.SetDefault("http.request-timeout", 60*time.Second)
	v.SetDefault("http.shutdown-timeout", 15*time.Second)
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-retries", 2)
	v.SetDefault("ai.gemini.max-log-length", 2000)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// A missing default config is fine, defaults and env still apply.
	// An explicit or unparseable config is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return config, nil
}
