package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thianvelaz/Cognio/internal/config"
	"github.com/Thianvelaz/Cognio/internal/embeddings/hashing"
	"github.com/Thianvelaz/Cognio/internal/health"
	"github.com/Thianvelaz/Cognio/internal/services"
	"github.com/Thianvelaz/Cognio/internal/store/memory"
)

type staticHealth bool

func (s staticHealth) IsHealthy() bool { return bool(s) }
func (s staticHealth) Components() []health.ComponentStatus {
	return []health.ComponentStatus{{Name: "store", Healthy: bool(s)}}
}

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	cfg := config.NewForTesting()
	svc := services.NewMemoryService(memory.New(), hashing.New(cfg.EmbedDimension), services.OptionsFromConfig(cfg), zerolog.Nop())
	router := NewRouter(svc, RouterConfig{APIKey: apiKey, Version: "test", Health: staticHealth(true), Log: zerolog.Nop()})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type saveResp struct {
	ID        string `json:"id"`
	Saved     bool   `json:"saved"`
	Duplicate bool   `json:"duplicate"`
	Reason    string `json:"reason"`
}

func TestAPI_RootAndHealth(t *testing.T) {
	srv := newTestServer(t, "")

	var root map[string]string
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/", nil, &root))
	assert.Equal(t, "Cognio", root["name"])

	var h map[string]interface{}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/health", nil, &h))
	assert.Equal(t, "healthy", h["status"])
}

func TestAPI_SaveAndDuplicate(t *testing.T) {
	srv := newTestServer(t, "")
	body := map[string]interface{}{"text": "Duplicate test", "project": "TEST", "tags": []string{"test"}}

	var first, second saveResp
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/memory/save", body, &first))
	assert.True(t, first.Saved)
	assert.False(t, first.Duplicate)
	assert.Equal(t, "created", first.Reason)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/memory/save", body, &second))
	assert.True(t, second.Duplicate)
	assert.Equal(t, "duplicate", second.Reason)
	assert.Equal(t, first.ID, second.ID)

	var got map[string]interface{}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/memory/"+first.ID, nil, &got))
	assert.Equal(t, "Duplicate test", got["text"])
	assert.NotContains(t, got, "embedding")
}

func TestAPI_SaveValidation(t *testing.T) {
	srv := newTestServer(t, "")
	var errResp map[string]interface{}
	code := doJSON(t, http.MethodPost, srv.URL+"/memory/save", map[string]string{"text": "  "}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "text", errResp["field"])

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/memory/save", strings.NewReader("{"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_SearchAndList(t *testing.T) {
	srv := newTestServer(t, "")
	for _, text := range []string{"Python is a programming language", "JavaScript is used for web development"} {
		doJSON(t, http.MethodPost, srv.URL+"/memory/save", map[string]interface{}{"text": text, "project": "TEST"}, nil)
	}

	var res struct {
		Results []struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		} `json:"results"`
		Total int `json:"total"`
	}
	code := doJSON(t, http.MethodGet, srv.URL+"/memory/search?q=python+programming+language&limit=5&threshold=0.3", nil, &res)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "Python is a programming language", res.Results[0].Text)
	assert.Greater(t, res.Results[0].Score, 0.3)

	code = doJSON(t, http.MethodGet, srv.URL+"/memory/search?q=x&after_date=garbage", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	for i := 0; i < 3; i++ {
		doJSON(t, http.MethodPost, srv.URL+"/memory/save", map[string]interface{}{"text": fmt.Sprintf("Memory %d", i)}, nil)
	}
	var list struct {
		Memories   []map[string]interface{} `json:"memories"`
		TotalItems int                      `json:"total_items"`
		TotalPages int                      `json:"total_pages"`
		Page       int                      `json:"page"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/memory/list?page=1&limit=2", nil, &list))
	assert.Equal(t, 5, list.TotalItems)
	assert.Equal(t, 3, list.TotalPages)
	assert.Len(t, list.Memories, 2)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/memory/list?page=0", nil, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/memory/list?sort=relevance", nil, nil))
}

func TestAPI_DeleteAndBulkDelete(t *testing.T) {
	srv := newTestServer(t, "")
	var saved saveResp
	doJSON(t, http.MethodPost, srv.URL+"/memory/save", map[string]string{"text": "Memory to delete", "project": "TEST"}, &saved)

	var del map[string]interface{}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodDelete, srv.URL+"/memory/"+saved.ID, nil, &del))
	assert.Equal(t, true, del["deleted"])
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodDelete, srv.URL+"/memory/"+saved.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, srv.URL+"/memory/"+saved.ID, nil, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodDelete, srv.URL+"/memory/not-a-uuid", nil, nil))

	doJSON(t, http.MethodPost, srv.URL+"/memory/save", map[string]string{"text": "a", "project": "P"}, nil)
	doJSON(t, http.MethodPost, srv.URL+"/memory/save", map[string]string{"text": "b", "project": "P"}, nil)
	var bulk map[string]interface{}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/memory/bulk-delete", map[string]string{"project": "P"}, &bulk))
	assert.Equal(t, float64(2), bulk["deleted_count"])
}

func TestAPI_Stats(t *testing.T) {
	srv := newTestServer(t, "")
	doJSON(t, http.MethodPost, srv.URL+"/memory/save", map[string]interface{}{"text": "Memory 1", "project": "PROJECT_A", "tags": []string{"tag1"}}, nil)
	doJSON(t, http.MethodPost, srv.URL+"/memory/save", map[string]interface{}{"text": "Memory 2", "project": "PROJECT_B", "tags": []string{"tag2"}}, nil)

	var stats struct {
		TotalMemories int            `json:"total_memories"`
		TotalProjects int            `json:"total_projects"`
		ByProject     map[string]int `json:"by_project"`
		StorageHuman  string         `json:"storage_human"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/memory/stats", nil, &stats))
	assert.Equal(t, 2, stats.TotalMemories)
	assert.Equal(t, 2, stats.TotalProjects)
	assert.Equal(t, map[string]int{"PROJECT_A": 1, "PROJECT_B": 1}, stats.ByProject)
	assert.NotEmpty(t, stats.StorageHuman)
}

func TestAPI_ExportImport(t *testing.T) {
	srv := newTestServer(t, "")
	doJSON(t, http.MethodPost, srv.URL+"/memory/save", map[string]interface{}{"text": "Export test memory", "project": "TEST", "tags": []string{"export"}}, nil)

	resp, err := http.Get(srv.URL + "/memory/export?format=markdown")
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	assert.Contains(t, buf.String(), "Export test memory")
	assert.Contains(t, buf.String(), "TEST")

	other := newTestServer(t, "")
	resp, err = http.Post(other.URL+"/memory/import?filename=backup.md", "text/markdown", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	var res struct {
		Imported   int `json:"imported"`
		Duplicates int `json:"duplicates"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	_ = resp.Body.Close()
	assert.Equal(t, 1, res.Imported)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/memory/export?format=csv", nil, nil))
}

func TestAPI_APIKey(t *testing.T) {
	srv := newTestServer(t, "s3cret")

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/health", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, http.MethodGet, srv.URL+"/memory/stats", nil, nil))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/memory/stats", nil)
	req.Header.Set(APIKeyHeader, "s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req.Header.Set(APIKeyHeader, "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
