package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  app_env: dev\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr default: %q", cfg.Server.Addr)
	}
	if cfg.Cache.Kind != "memory" || cfg.Cache.Memory.Shards != 32 {
		t.Fatalf("cache defaults: %+v", cfg.Cache)
	}
	if cfg.Journal.Driver != "memory" {
		t.Fatalf("journal default: %q", cfg.Journal.Driver)
	}
	if cfg.ShutdownTimeout() != 10*time.Second {
		t.Fatalf("shutdown timeout: %v", cfg.ShutdownTimeout())
	}
	if cfg.GoCacheTTL() != 2*time.Minute {
		t.Fatalf("gocache ttl: %v", cfg.GoCacheTTL())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("CACHE_KIND", "gocache")
	t.Setenv("JOURNAL_DRIVER", "postgres")
	t.Setenv("JOURNAL_DSN", "postgres://x")
	path := writeConfig(t, "server:\n  addr: \":8080\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("env no pisó addr: %q", cfg.Server.Addr)
	}
	if cfg.Cache.Kind != "gocache" || cfg.Journal.Driver != "postgres" {
		t.Fatalf("env overrides: %+v", cfg)
	}
}

func TestLoad_RejectsInvalidCombos(t *testing.T) {
	cases := map[string]string{
		"kind desconocido":     "cache:\n  kind: memcached\n",
		"redis sin addr":       "cache:\n  kind: redis\n",
		"postgres sin dsn":     "journal:\n  driver: postgres\n",
		"prod redis + memoria": "app:\n  app_env: prod\ncache:\n  kind: redis\n  redis:\n    addr: localhost:6379\n",
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, yaml)); err == nil {
				t.Fatal("esperaba error de validación")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("esperaba error por archivo inexistente")
	}
}
