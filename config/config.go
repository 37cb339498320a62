package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Feed      FeedConfig
	Mongo     MongoConfig
	Cache     CacheConfig
	Cleanup   CleanupConfig
	Scheduler SchedulerConfig

	HTTPAddr        string
	RunLogPath      string
	LogPath         string
	LinkConcurrency int
}

type FeedConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type MongoConfig struct {
	URI      string
	Database string
}

type CacheConfig struct {
	Type          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type CleanupConfig struct {
	DeleteChunkSize int
	AgentChunkSize  int
}

type SchedulerConfig struct {
	Cron     string
	Interval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Feed: FeedConfig{
			URL:     os.Getenv("FEED_URL"),
			Timeout: getEnvDuration("FEED_TIMEOUT", 120*time.Second),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "pfsync"),
		},
		Cache: CacheConfig{
			Type:          getEnv("CACHE_TYPE", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTL:           getEnvDuration("CACHE_TTL", 10*time.Minute),
		},
		Cleanup: CleanupConfig{
			DeleteChunkSize: getEnvInt("CLEANUP_DELETE_CHUNK", 5000),
			AgentChunkSize:  getEnvInt("CLEANUP_AGENT_CHUNK", 5000),
		},
		Scheduler: SchedulerConfig{
			Cron:     getEnv("SYNC_CRON", "0 */2 * * *"),
			Interval: getEnvDuration("SYNC_INTERVAL", 0),
		},
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		RunLogPath:      getEnv("RUNLOG_PATH", "pfsync.db"),
		LogPath:         getEnv("LOG_PATH", "pfsync.log"),
		LinkConcurrency: getEnvInt("AGENT_LINK_CONCURRENCY", 10),
	}

	// An interval schedule replaces the cron default rather than running
	// alongside it.
	if cfg.Scheduler.Interval > 0 && os.Getenv("SYNC_CRON") == "" {
		cfg.Scheduler.Cron = ""
	}

	if err := cfg.loadFeedFile(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFeedFile applies config/feed.yaml on top of the environment when
// present. The file wins, matching how deployments pin the feed URL.
func (c *Config) loadFeedFile() error {
	data, err := os.ReadFile("config/feed.yaml")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file FeedConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.URL != "" {
		c.Feed.URL = file.URL
	}
	if file.Timeout > 0 {
		c.Feed.Timeout = file.Timeout
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
