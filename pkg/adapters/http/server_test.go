package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stanza/internal/compile"
	"github.com/aretw0/stanza/internal/runtime"
	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	doc, err := compile.Document("inn", domain.Frontmatter{}, []map[string]any{
		{"kind": "state", "name": "gold", "value": 100},
		{"kind": "state", "name": "drink", "value": ""},
		{"kind": "prose", "text": "You enter the inn."},
		{"kind": "form", "id": "order", "fields": []map[string]any{
			{"name": "drink", "type": "choice", "options": []string{"ale", "cider"}, "required": true},
		}},
		{"kind": "nav", "id": "doors", "choices": []map[string]any{
			{"label": "Leave", "target": "street"},
		}},
	})
	require.NoError(t, err)

	sessions := session.NewManager(func(doc *domain.Document) *runtime.Runner {
		return runtime.NewRunner(doc)
	})
	sessions.Register(doc)

	srv := httptest.NewServer(NewServer(sessions).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthAndInfo(t *testing.T) {
	srv := newTestServer(t)

	var health map[string]string
	resp := getJSON(t, srv.URL+"/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	var info map[string]string
	getJSON(t, srv.URL+"/info", &info)
	assert.Equal(t, "stanza-http", info["app"])
}

func TestRenderDocument(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		DocumentID string `json:"document_id"`
		Fragments  []struct {
			Type    string `json:"type"`
			BlockID string `json:"block_id"`
		} `json:"fragments"`
	}
	resp := getJSON(t, srv.URL+"/documents/inn/render", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "inn", body.DocumentID)
	require.Len(t, body.Fragments, 3)
	assert.Equal(t, "prose", body.Fragments[0].Type)
	assert.Equal(t, "form", body.Fragments[1].Type)
	assert.Equal(t, "nav", body.Fragments[2].Type)
}

func TestRenderUnknownDocument(t *testing.T) {
	srv := newTestServer(t)
	resp := getJSON(t, srv.URL+"/documents/ghost/render", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitFormValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/documents/inn/forms/order", map[string]any{"drink": "mead"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body struct {
		Fields []struct {
			Field  string `json:"field"`
			Reason string `json:"reason"`
		} `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "drink", body.Fields[0].Field)
}

func TestSubmitFormSuccess(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/documents/inn/forms/order", map[string]any{"drink": "ale"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChoose(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/documents/inn/nav/doors", map[string]string{"label": "Leave"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Target string `json:"target"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "street", body.Target)

	resp = postJSON(t, srv.URL+"/documents/inn/nav/doors", map[string]string{"label": "Burrow"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/documents/inn/nav/doors", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCloseDocument(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/documents/inn/", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestListDocuments(t *testing.T) {
	srv := newTestServer(t)

	var body map[string][]string
	getJSON(t, srv.URL+"/documents", &body)
	assert.Equal(t, []string{"inn"}, body["documents"])
}
