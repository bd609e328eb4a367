package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/triarom/voip-phonebook-go/internal/models"
	"github.com/triarom/voip-phonebook-go/internal/store"
)

const testAPIKey = "test-api-key"

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mux := http.NewServeMux()
	NewRouter(st, testAPIKey, zerolog.Nop()).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, st
}

func doJSON(t *testing.T, method, url, apiKey string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestAuthRequired(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/sites", "", map[string]string{"name": "X"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, server.URL+"/api/sites", "wrong", map[string]string{"name": "X"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDisabledWithoutKey(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mux := http.NewServeMux()
	NewRouter(st, "", zerolog.Nop()).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/services", "any", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSiteAndPhonebookManagement(t *testing.T) {
	server, _ := newTestServer(t)

	var site models.Site
	resp := doJSON(t, http.MethodPost, server.URL+"/api/sites", testAPIKey, map[string]string{"name": "Head Office"}, &site)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, site.ID)

	var fields []models.PhonebookField
	resp = doJSON(t, http.MethodGet, server.URL+"/api/sites/"+site.ID+"/fields", testAPIKey, nil, &fields)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, fields, 3, "new sites carry the seeded default fields")

	var field models.PhonebookField
	resp = doJSON(t, http.MethodPost, server.URL+"/api/sites/"+site.ID+"/fields", testAPIKey,
		map[string]any{"name": "Department"}, &field)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "text", field.Type, "field type defaults to text")

	var pb models.Phonebook
	resp = doJSON(t, http.MethodPost, server.URL+"/api/sites/"+site.ID+"/phonebooks", testAPIKey,
		map[string]string{"name": "Office"}, &pb)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var books []models.Phonebook
	resp = doJSON(t, http.MethodGet, server.URL+"/api/sites/"+site.ID+"/phonebooks", testAPIKey, nil, &books)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, books, 1)

	var entry models.PhonebookEntry
	resp = doJSON(t, http.MethodPost, server.URL+"/api/phonebooks/"+pb.ID+"/entries", testAPIKey,
		map[string]any{"values": map[string]string{fields[0].ID: "Alice"}}, &entry)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var entries []models.PhonebookEntry
	resp = doJSON(t, http.MethodGet, server.URL+"/api/phonebooks/"+pb.ID+"/entries", testAPIKey, nil, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alice", entries[0].Values[fields[0].ID])

	resp = doJSON(t, http.MethodPost, server.URL+"/api/sites", testAPIKey, map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListServices(t *testing.T) {
	server, st := newTestServer(t)

	var services []*models.VendorService
	resp := doJSON(t, http.MethodGet, server.URL+"/api/services", testAPIKey, nil, &services)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, services)

	require.NoError(t, st.CreateService(&models.VendorService{
		Name:         "yealink",
		FriendlyName: "Yealink Connector",
		Version:      "1.0.0",
	}))

	resp = doJSON(t, http.MethodGet, server.URL+"/api/services", testAPIKey, nil, &services)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, services, 1)
	assert.Equal(t, "yealink", services[0].Name)
}
