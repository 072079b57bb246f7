package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// AdminAPIKey protege los endpoints de invalidación. Vacío = solo
		// lectura (stats/healthz/metrics).
		AdminAPIKey     string `yaml:"admin_api_key"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Cache struct {
		// memory | gocache | redis
		Kind   string `yaml:"kind"`
		Memory struct {
			Shards int `yaml:"shards"`
		} `yaml:"memory"`
		GoCache struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"gocache"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			// PassEnc: password cifrada con secretbox (base64 nonce|ct).
			// Tiene prioridad sobre Password si SECRETBOX_MASTER_KEY está.
			PassEnc string `yaml:"pass_enc"`
			DB      int    `yaml:"db"`
			Prefix  string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Journal struct {
		// memory | postgres
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"journal"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		MaxRequests int    `yaml:"max_requests"`
		Window      string `yaml:"window"`
	} `yaml:"rate"`

	Storage struct {
		// DSN del system of record (postgres).
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Security struct {
		// base64(32 bytes) para descifrar secretos del YAML
		SecretBoxMasterKey string `yaml:"secretbox_master_key"`
	} `yaml:"security"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.Shards == 0 {
		c.Cache.Memory.Shards = 32
	}
	if c.Cache.GoCache.DefaultTTL == "" {
		c.Cache.GoCache.DefaultTTL = "2m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "ec"
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 30
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 8
	}
	if c.Storage.Postgres.ConnMaxLifetime == "" {
		c.Storage.Postgres.ConnMaxLifetime = "30m"
	}

	// validate string durations
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return nil, err
	}
	if _, err := time.ParseDuration(c.Cache.GoCache.DefaultTTL); err != nil {
		return nil, err
	}
	if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
		return nil, err
	}
	if _, err := time.ParseDuration(c.Rate.Window); err != nil {
		return nil, err
	}

	// Overrides por env + validación
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.Server.AdminAPIKey = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvInt("CACHE_MEMORY_SHARDS"); ok {
		c.Cache.Memory.Shards = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	// JOURNAL
	if v, ok := getEnvStr("JOURNAL_DRIVER"); ok {
		c.Journal.Driver = v
	}
	if v, ok := getEnvStr("JOURNAL_DSN"); ok {
		c.Journal.DSN = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}
}

// Validate chequea combinaciones inválidas que conviene cortar en el
// arranque y no en runtime.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Cache.Kind) {
	case "memory", "gocache":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("config: cache.kind=redis requiere cache.redis.addr")
		}
	default:
		return fmt.Errorf("config: cache.kind inválido %q (memory|gocache|redis)", c.Cache.Kind)
	}

	switch strings.ToLower(c.Journal.Driver) {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Journal.DSN) == "" {
			return fmt.Errorf("config: journal.driver=postgres requiere journal.dsn")
		}
	default:
		return fmt.Errorf("config: journal.driver inválido %q (memory|postgres)", c.Journal.Driver)
	}

	if strings.EqualFold(c.App.Env, "prod") && strings.ToLower(c.Journal.Driver) == "memory" && strings.ToLower(c.Cache.Kind) == "redis" {
		// Journal en memoria + cache compartido sobrevive al proceso: las
		// marcas se pierden en restart y el redis queda con entradas viejas
		// imposibles de verificar.
		return fmt.Errorf("config: en prod, cache.kind=redis requiere journal.driver=postgres")
	}
	return nil
}

// ShutdownTimeout parsea Server.ShutdownTimeout (ya validado en Load).
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}

// GoCacheTTL parsea Cache.GoCache.DefaultTTL (ya validado en Load).
func (c *Config) GoCacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.GoCache.DefaultTTL)
	return d
}

// RateWindow parsea Rate.Window (ya validado en Load).
func (c *Config) RateWindow() time.Duration {
	d, _ := time.ParseDuration(c.Rate.Window)
	return d
}
