package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/evo/pkg/tools"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{APIKey: "test-key", Endpoint: srv.URL})
	require.NoError(t, err)
	return srv, client
}

func TestSearch(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "golang generics", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))

		w.Write([]byte(`{"web": {"results": [
			{"title": "Go Generics", "url": "https://go.dev/doc/tutorial/generics", "description": "An introduction"},
			{"title": "Type Parameters", "url": "https://go.dev/ref/spec", "description": "The language reference"}
		]}}`))
	})

	results, err := client.Search(context.Background(), "golang generics", 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Go Generics", results[0].Title)
	assert.Equal(t, "https://go.dev/ref/spec", results[1].URL)
}

func TestSearch_EmptyQuery(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.Search(context.Background(), "  ", 5)
	assert.Error(t, err)
}

func TestSearch_APIError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := client.Search(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSearch_CountClamped(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		w.Write([]byte(`{"web": {"results": []}}`))
	})

	_, err := client.Search(context.Background(), "x", 99)
	require.NoError(t, err)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestTool(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web": {"results": [
			{"title": "Weather in Oslo", "url": "https://example.com", "description": "Cloudy, 12C"}
		]}}`))
	})

	tool := Tool(client)
	assert.Equal(t, "web_search", tool.Schema().Name)

	out, err := tool.Invoke(context.Background(), map[string]interface{}{"query": "oslo weather"})
	require.NoError(t, err)
	assert.Contains(t, out, "**Weather in Oslo**")
	assert.Contains(t, out, "Link: https://example.com")
}

func TestTool_NoResults(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web": {"results": []}}`))
	})

	out, err := Tool(client).Invoke(context.Background(), map[string]interface{}{"query": "xyzzy"})
	require.NoError(t, err)
	assert.Equal(t, "No results found.", out)
}

func TestTool_UpstreamFailureIsToolError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := Tool(client).Invoke(context.Background(), map[string]interface{}{"query": "x"})
	var fe *tools.FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, tools.FailToolError, fe.Kind)
}
