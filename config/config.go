package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultConfigFile = "./config/config.yaml"

type Postgres struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	// MaxDatabases caps how many project databases one process keeps open.
	MaxDatabases int `mapstructure:"maxDatabases"`
}

func (p Postgres) ConnStr() string {
	return p.ConnStrFor(p.DBName)
}

// ConnStrFor builds a DSN for another database on the same server. The
// database name is quoted so it always stays a single value.
func (p Postgres) ConnStrFor(dbName string) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s", p.Host, p.User, p.Password, quoteDSN(dbName), p.Port, p.SSLMode)
}

func quoteDSN(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (p Postgres) ReplicationConnStr() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s replication=database", p.Host, p.User, p.Password, p.DBName, p.Port, p.SSLMode)
}

type Nats struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	Stream         string `mapstructure:"stream"`
	MenuSubject    string `mapstructure:"menuSubject"`
	ReviewsSubject string `mapstructure:"reviewsSubject"`
	PromptsSubject string `mapstructure:"promptsSubject"`
}

func (n Nats) ConnStr() string {
	return fmt.Sprintf("nats://%s:%s", n.Host, n.Port)
}

func (n Nats) Subjects() []string {
	return []string{n.MenuSubject, n.ReviewsSubject, n.PromptsSubject}
}

type Replication struct {
	Name string `mapstructure:"name"`
	Slot string `mapstructure:"slot"`
}

type Ollama struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	EmbeddingModel string `mapstructure:"embeddingModel"`
}

func (o *Ollama) Address() string {
	return fmt.Sprintf("http://%s:%s", o.Host, o.Port)
}

type Embedding struct {
	CacheSize int           `mapstructure:"cacheSize"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LLM points at an OpenAI compatible chat completions server (vLLM, OpenAI).
type LLM struct {
	URL       string        `mapstructure:"url"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"apiKey"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"maxTokens"`
}

type Extractor struct {
	Mode           string        `mapstructure:"mode"`
	RemoteURL      string        `mapstructure:"remoteURL"`
	PromptBasename string        `mapstructure:"promptBasename"`
	LocalTimeout   time.Duration `mapstructure:"localTimeout"`
	RemoteTimeout  time.Duration `mapstructure:"remoteTimeout"`
	MaxTokens      int           `mapstructure:"maxTokens"`
	TopP           float64       `mapstructure:"topP"`
}

type Extraction struct {
	PromptsDir   string    `mapstructure:"promptsDir"`
	RemoteAPIKey string    `mapstructure:"remoteAPIKey"`
	Criteria     Extractor `mapstructure:"criteria"`
	Reviews      Extractor `mapstructure:"reviews"`
}

type Redis struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"sessionTTL"`
}

type Chat struct {
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queueSize"`
	DefaultPromptFile string        `mapstructure:"defaultPromptFile"`
	MaxMenuItems      int           `mapstructure:"maxMenuItems"`
	PrefetchK         int           `mapstructure:"prefetchK"`
	ReviewsPerQuery   int           `mapstructure:"reviewsPerQuery"`
	SearchTimeout     time.Duration `mapstructure:"searchTimeout"`
	ReviewsTimeout    time.Duration `mapstructure:"reviewsTimeout"`
	RoutePrefix       string        `mapstructure:"routePrefix"`
}

type Menu struct {
	SnapshotTTL time.Duration `mapstructure:"snapshotTTL"`
}

type Server struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Embedder struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queueSize"`
}

type Config struct {
	Postgres    Postgres    `mapstructure:"postgres"`
	Nats        Nats        `mapstructure:"nats"`
	Ollama      Ollama      `mapstructure:"ollama"`
	Embedding   Embedding   `mapstructure:"embedding"`
	LLM         LLM         `mapstructure:"llm"`
	Extraction  Extraction  `mapstructure:"extraction"`
	Redis       Redis       `mapstructure:"redis"`
	Chat        Chat        `mapstructure:"chat"`
	Menu        Menu        `mapstructure:"menu"`
	Replication Replication `mapstructure:"replication"`
	Server      Server      `mapstructure:"server"`
	Embedder    Embedder    `mapstructure:"embedder"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.database", "ristosushi_it")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.maxDatabases", 16)

	v.SetDefault("nats.host", "localhost")
	v.SetDefault("nats.port", "4222")
	v.SetDefault("nats.stream", "CHATBOT_CDC")
	v.SetDefault("nats.menuSubject", "cdc.menu")
	v.SetDefault("nats.reviewsSubject", "cdc.recensioni")
	v.SetDefault("nats.promptsSubject", "cdc.prompt")

	v.SetDefault("replication.name", "chatbot_pub")
	v.SetDefault("replication.slot", "chatbot_slot")

	v.SetDefault("ollama.host", "localhost")
	v.SetDefault("ollama.port", "11434")
	v.SetDefault("ollama.embeddingModel", "nomic-embed-text")

	v.SetDefault("embedding.cacheSize", 4096)
	v.SetDefault("embedding.timeout", 5*time.Second)

	v.SetDefault("llm.url", "http://localhost:8000/v1")
	v.SetDefault("llm.model", "google/gemma-3-27b-it")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.timeout", 180*time.Second)
	v.SetDefault("llm.maxTokens", 8192)

	v.SetDefault("extraction.promptsDir", "./prompts")
	v.SetDefault("extraction.remoteAPIKey", "")
	v.SetDefault("extraction.criteria.mode", "local")
	v.SetDefault("extraction.criteria.remoteURL", "http://localhost:9001/api/criteria")
	v.SetDefault("extraction.criteria.promptBasename", "demo-criteria")
	v.SetDefault("extraction.criteria.localTimeout", 60*time.Second)
	v.SetDefault("extraction.criteria.remoteTimeout", 25*time.Second)
	v.SetDefault("extraction.criteria.maxTokens", 768)
	v.SetDefault("extraction.criteria.topP", 0.1)
	v.SetDefault("extraction.reviews.mode", "local")
	v.SetDefault("extraction.reviews.remoteURL", "http://localhost:9001/api/reviews")
	v.SetDefault("extraction.reviews.promptBasename", "demo-reviews")
	v.SetDefault("extraction.reviews.localTimeout", 90*time.Second)
	v.SetDefault("extraction.reviews.remoteTimeout", 25*time.Second)
	v.SetDefault("extraction.reviews.maxTokens", 512)
	v.SetDefault("extraction.reviews.topP", 1.0)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.sessionTTL", 2*time.Hour)

	v.SetDefault("chat.workers", 32)
	v.SetDefault("chat.queueSize", 256)
	v.SetDefault("chat.defaultPromptFile", "./prompts/demo-chat.txt")
	v.SetDefault("chat.maxMenuItems", 8)
	v.SetDefault("chat.prefetchK", 3)
	v.SetDefault("chat.reviewsPerQuery", 4)
	v.SetDefault("chat.searchTimeout", 30*time.Second)
	v.SetDefault("chat.reviewsTimeout", 60*time.Second)
	v.SetDefault("chat.routePrefix", "/ristosushi_it")

	v.SetDefault("menu.snapshotTTL", 5*time.Minute)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5010)

	v.SetDefault("embedder.workers", 2)
	v.SetDefault("embedder.queueSize", 100)
}

// Load reads the YAML file at path (when it exists) on top of the defaults and
// applies environment overrides such as CHAT_WORKERS or REDIS_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &config, nil
}

func LoadConfig() *Config {
	config, err := Load(DefaultConfigFile)
	if err != nil {
		log.Fatal(err)
	}

	return config
}
