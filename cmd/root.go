package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "resume-screener"
)

type Config struct {
	HTTP      *HTTPConfig      `mapstructure:"http"`
	Store     *StoreConfig     `mapstructure:"store"`
	AI        *AIConfig        `mapstructure:"ai"`
	Screening *ScreeningConfig `mapstructure:"screening"`
	Events    *EventsConfig    `mapstructure:"events"`
	Queue     *QueueConfig     `mapstructure:"queue"`
	PDF       *PDFConfig       `mapstructure:"pdf"`
}

type HTTPConfig struct {
	Listen            string `mapstructure:"listen"`
	RequestsPerMinute int    `mapstructure:"requests-per-minute"`
}

type StoreConfig struct {
	// Driver is one of memory, sqlite or postgres. Empty picks postgres when
	// a DSN is set and sqlite otherwise.
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type AIConfig struct {
	Provider          string        `mapstructure:"provider"`
	RequestsPerMinute int           `mapstructure:"requests-per-minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Gemini            *GeminiConfig `mapstructure:"gemini"`
	OpenAI            *OpenAIConfig `mapstructure:"openai"`
	Vertex            *VertexConfig `mapstructure:"vertex"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	BaseURL      string `mapstructure:"base-url"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type VertexConfig struct {
	Project      string `mapstructure:"project"`
	Location     string `mapstructure:"location"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type ScreeningConfig struct {
	MaxSnippets     int `mapstructure:"max-snippets"`
	ResumeRuneLimit int `mapstructure:"resume-rune-limit"`
	BatchDefault    int `mapstructure:"batch-default"`
}

type EventsConfig struct {
	RedisURL string `mapstructure:"redis-url"`
	Channel  string `mapstructure:"channel"`
}

type QueueConfig struct {
	URL      string        `mapstructure:"url"`
	Name     string        `mapstructure:"name"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type PDFConfig struct {
	LicenseKey string `mapstructure:"license-key"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-screener scores resumes against job descriptions with a generative model",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

var envBindings = map[string]string{
	"ai.gemini.api-key": "GEMINI_API_KEY",
	"ai.openai.api-key": "OPENAI_API_KEY",
	"store.dsn":         "DATABASE_URL",
	"events.redis-url":  "REDIS_URL",
	"queue.url":         "RABBITMQ_URL",
}

func init() {
	setDefaults()

	viper.SetEnvPrefix("SCREENER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, "SCREENER_"+strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key)), env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("log-output", "", "log destination: a file path, stdout or stderr (default stdout)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("log-output", rootCmd.PersistentFlags().Lookup("log-output"))
}

func setDefaults() {
	viper.SetDefault("http.listen", ":8080")
	viper.SetDefault("http.requests-per-minute", 30)

	viper.SetDefault("store.driver", "")
	viper.SetDefault("store.path", app+".db")
	viper.SetDefault("store.dsn", "")

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.requests-per-minute", 0)
	viper.SetDefault("ai.timeout", 90*time.Second)
	viper.SetDefault("ai.gemini.api-key", "")
	viper.SetDefault("ai.gemini.api-key-file", "")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)
	viper.SetDefault("ai.openai.api-key", "")
	viper.SetDefault("ai.openai.api-key-file", "")
	viper.SetDefault("ai.openai.model", "gpt-4o-mini")
	viper.SetDefault("ai.openai.base-url", "")
	viper.SetDefault("ai.openai.max-log-length", 200)
	viper.SetDefault("ai.vertex.project", "")
	viper.SetDefault("ai.vertex.location", "us-central1")
	viper.SetDefault("ai.vertex.model", "gemini-2.5-flash")
	viper.SetDefault("ai.vertex.max-log-length", 200)

	viper.SetDefault("screening.max-snippets", 3)
	viper.SetDefault("screening.resume-rune-limit", 200_000)
	viper.SetDefault("screening.batch-default", 10)

	viper.SetDefault("events.redis-url", "")
	viper.SetDefault("events.channel", "screening.events")

	viper.SetDefault("queue.url", "")
	viper.SetDefault("queue.name", "evaluation_queue")
	viper.SetDefault("queue.cooldown", 30*time.Second)

	viper.SetDefault("pdf.license-key", "")
}

func initConfig() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit config file must exist; the default one is optional.
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
