package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropDatabas3/entitycache/internal/cache"
	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/dropDatabas3/entitycache/internal/journal"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "test-admin-key"

func newTestServer(t *testing.T, values map[string][]byte) (*httptest.Server, *cache.ReadThrough) {
	t.Helper()
	fetcher := cache.FetcherFunc(func(_ context.Context, key cache.Key) ([]byte, error) {
		v, ok := values[key.String()]
		if !ok {
			return nil, nil
		}
		return v, nil
	})
	rt, err := cache.NewReadThrough(cache.NewMemory(4), journal.NewMemory(), fetcher, cache.ReadThroughConfig{})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(Deps{Cache: rt, AdminAPIKey: testAdminKey}))
	t.Cleanup(srv.Close)
	return srv, rt
}

func TestHealthAndStats(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/cache/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st cache.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.Equal(t, "memory", st.Driver)
}

func TestGetEntity(t *testing.T) {
	t.Parallel()
	tenant := uuid.New()
	id := uuid.New()
	key, err := cache.NewKey(tenant, entity.TypeNote, id)
	require.NoError(t, err)
	srv, _ := newTestServer(t, map[string][]byte{key.String(): []byte(`{"title":"x"}`)})

	url := fmt.Sprintf("%s/v1/entities/%s/note/%s", srv.URL, tenant, id)

	// Primer read: miss que va al origen.
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "miss", resp.Header.Get("X-Cache"))
	require.Equal(t, "false", resp.Header.Get("X-Cache-Stale"))

	// Segundo read: hit.
	resp, err = http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "hit", resp.Header.Get("X-Cache"))

	// No existe → 404.
	resp, err = http.Get(fmt.Sprintf("%s/v1/entities/%s/note/%s", srv.URL, tenant, uuid.New()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Tipo desconocido → 400.
	resp, err = http.Get(fmt.Sprintf("%s/v1/entities/%s/wat/%s", srv.URL, tenant, id))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Freshness inválida → 400.
	resp, err = http.Get(url + "?freshness=psychic")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEndpointsRequireKey(t *testing.T) {
	t.Parallel()
	tenant := uuid.New()
	srv, _ := newTestServer(t, nil)
	url := fmt.Sprintf("%s/v1/cache/invalidate/tenants/%s", srv.URL, tenant)

	// Sin key → 401.
	resp, err := http.Post(url, "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Key equivocada → 401.
	req, _ := http.NewRequest(http.MethodPost, url, nil)
	req.Header.Set("X-Admin-Key", "nope")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Key correcta → 200.
	req, _ = http.NewRequest(http.MethodPost, url, nil)
	req.Header.Set("X-Admin-Key", testAdminKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvalidateTenantEndpoint(t *testing.T) {
	t.Parallel()
	tenant := uuid.New()
	id := uuid.New()
	key, err := cache.NewKey(tenant, entity.TypeNote, id)
	require.NoError(t, err)
	srv, rt := newTestServer(t, map[string][]byte{key.String(): []byte(`{}`)})

	// Poblar el cache.
	_, err = rt.GetRaw(context.Background(), key, cache.Consistent())
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/v1/cache/invalidate/tenants/%s", srv.URL, tenant), nil)
	req.Header.Set("X-Admin-Key", testAdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Invalidated uint64 `json:"invalidated"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, uint64(1), out.Invalidated)
}

func TestInvalidateKeyEndpoint(t *testing.T) {
	t.Parallel()
	tenant := uuid.New()
	srv, _ := newTestServer(t, nil)

	body, _ := json.Marshal(map[string]string{
		"tenant_id":   tenant.String(),
		"entity_type": "note",
		"entity_id":   uuid.NewString(),
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/cache/invalidate/keys", bytes.NewReader(body))
	req.Header.Set("X-Admin-Key", testAdminKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// El journal del tenant tiene la entrada de invalidación.
	req, _ = http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v1/journal/%s", srv.URL, tenant), nil)
	req.Header.Set("X-Admin-Key", testAdminKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var jout struct {
		Entries []struct {
			Watermark uint64 `json:"watermark"`
		} `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jout))
	require.Len(t, jout.Entries, 1)
}
