package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/entitycache/internal/security/secretbox"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func main() {
	var (
		baseURL = envOr("CACHED_URL", "http://localhost:8080")
		apiKey  = envOr("CACHED_ADMIN_KEY", "")
		out     = envOr("CACHED_OUT", "text")
		timeout = 30 * time.Second
	)

	root := &cobra.Command{
		Use:   "cachectl",
		Short: "CLI operacional del cache de entidades",
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del daemon (env CACHED_URL)")
	root.PersistentFlags().StringVar(&apiKey, "admin-key", apiKey, "API key admin (env CACHED_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: text|json (env CACHED_OUT)")

	cl := func() *client {
		return &client{BaseURL: baseURL, APIKey: apiKey, OutFormat: out, HTTP: &http.Client{Timeout: timeout}}
	}

	requireKey := func(cmd *cobra.Command, args []string) error {
		if apiKey == "" {
			return fmt.Errorf("falta la admin key (flag --admin-key o env CACHED_ADMIN_KEY)")
		}
		return nil
	}

	// ---- stats ----
	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Contadores del backend (hits, misses, entradas, memoria)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cl()
			st, body, err := c.do(http.MethodGet, "/v1/cache/stats", nil)
			if err != nil {
				return err
			}
			c.print(st, body)
			return nil
		},
	})

	// ---- get ----
	getCmd := &cobra.Command{
		Use:   "get <tenant-id> <entity-type> <entity-id>",
		Short: "Lee una entidad a través del cache",
		Args:  cobra.ExactArgs(3),
	}
	var freshness, maxStaleness string
	getCmd.Flags().StringVar(&freshness, "freshness", "consistent", "consistent|best_effort")
	getCmd.Flags().StringVar(&maxStaleness, "max-staleness", "30s", "tolerancia para best_effort")
	getCmd.RunE = func(cmd *cobra.Command, args []string) error {
		c := cl()
		path := fmt.Sprintf("/v1/entities/%s/%s/%s?freshness=%s", args[0], args[1], args[2], freshness)
		if freshness == "best_effort" {
			path += "&max_staleness=" + maxStaleness
		}
		st, body, err := c.do(http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		c.print(st, body)
		return nil
	}
	root.AddCommand(getCmd)

	// ---- invalidate ----
	invCmd := &cobra.Command{Use: "invalidate", Short: "Invalidaciones por scope"}
	invCmd.AddCommand(&cobra.Command{
		Use:     "tenant <tenant-id>",
		Short:   "Invalida todas las entradas del tenant",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireKey,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cl()
			st, body, err := c.do(http.MethodPost, "/v1/cache/invalidate/tenants/"+args[0], nil)
			if err != nil {
				return err
			}
			c.print(st, body)
			return nil
		},
	})
	invCmd.AddCommand(&cobra.Command{
		Use:     "type <tenant-id> <entity-type>",
		Short:   "Invalida las entradas de un tipo dentro del tenant",
		Args:    cobra.ExactArgs(2),
		PreRunE: requireKey,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cl()
			st, body, err := c.do(http.MethodPost,
				fmt.Sprintf("/v1/cache/invalidate/tenants/%s/types/%s", args[0], args[1]), nil)
			if err != nil {
				return err
			}
			c.print(st, body)
			return nil
		},
	})
	invCmd.AddCommand(&cobra.Command{
		Use:     "key <tenant-id> <entity-type> <entity-id>",
		Short:   "Invalida una entrada puntual",
		Args:    cobra.ExactArgs(3),
		PreRunE: requireKey,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cl()
			body, _ := json.Marshal(map[string]string{
				"tenant_id":   args[0],
				"entity_type": args[1],
				"entity_id":   args[2],
			})
			st, resp, err := c.do(http.MethodPost, "/v1/cache/invalidate/keys", body)
			if err != nil {
				return err
			}
			c.print(st, resp)
			return nil
		},
	})
	root.AddCommand(invCmd)

	// ---- journal ----
	jCmd := &cobra.Command{Use: "journal", Short: "Consultas al change journal"}
	listCmd := &cobra.Command{
		Use:     "list <tenant-id>",
		Short:   "Lista entradas del journal del tenant",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireKey,
	}
	var since uint64
	listCmd.Flags().Uint64Var(&since, "since", 0, "watermark de arranque (exclusivo)")
	listCmd.RunE = func(cmd *cobra.Command, args []string) error {
		c := cl()
		st, body, err := c.do(http.MethodGet, fmt.Sprintf("/v1/journal/%s?since=%d", args[0], since), nil)
		if err != nil {
			return err
		}
		c.print(st, body)
		return nil
	}
	jCmd.AddCommand(listCmd)
	pruneCmd := &cobra.Command{
		Use:     "prune <tenant-id>",
		Short:   "Poda entradas viejas del journal (conserva la última marca por scope)",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireKey,
	}
	var before string
	pruneCmd.Flags().StringVar(&before, "before", "", "timestamp RFC3339; requerido")
	pruneCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if _, err := time.Parse(time.RFC3339, before); err != nil {
			return fmt.Errorf("--before inválido: %w", err)
		}
		c := cl()
		body, _ := json.Marshal(map[string]string{"before": before})
		st, resp, err := c.do(http.MethodPost, "/v1/journal/"+args[0]+"/prune", body)
		if err != nil {
			return err
		}
		c.print(st, resp)
		return nil
	}
	jCmd.AddCommand(pruneCmd)
	root.AddCommand(jCmd)

	// ---- enc ----
	root.AddCommand(&cobra.Command{
		Use:   "enc <plaintext>",
		Short: "Cifra un secreto para el YAML (usa SECRETBOX_MASTER_KEY)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv("SECRETBOX_MASTER_KEY")
			if key == "" {
				return fmt.Errorf("SECRETBOX_MASTER_KEY no seteada")
			}
			ct, err := secretbox.Encrypt(key, args[0])
			if err != nil {
				return err
			}
			fmt.Println(ct)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
