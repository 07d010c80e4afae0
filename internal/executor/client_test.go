package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algoprep/algoprep-backend/internal/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&config.Config{
		ExecGatewayURL: baseURL,
		ExecLanguage:   "c++",
		ExecVersion:    "10.2.0",
		ExecTimeout:    5 * time.Second,
	}, zerolog.Nop())
}

func TestExecuteSuccess(t *testing.T) {
	var captured map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/execute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"compile": map[string]interface{}{"stdout": "", "stderr": "", "code": 0},
			"run":     map[string]interface{}{"stdout": "42\n", "stderr": "", "code": 0},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.Execute(context.Background(), Request{Source: "int main(){}", Stdin: "in"})
	require.NoError(t, err)

	assert.Equal(t, "42\n", result.Stdout)
	assert.True(t, result.Compiled())
	assert.Equal(t, 0, result.ExitCode)

	// Defaults applied from config.
	assert.Equal(t, "c++", captured["language"])
	assert.Equal(t, "10.2.0", captured["version"])
	assert.Equal(t, "in", captured["stdin"])
	files := captured["files"].([]interface{})
	require.Len(t, files, 1)
	assert.Equal(t, "int main(){}", files[0].(map[string]interface{})["content"])
}

func TestExecuteCompileFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"compile": map[string]interface{}{"stdout": "", "stderr": "error: expected ';'", "code": 1},
			"run":     map[string]interface{}{"stdout": "", "stderr": "", "code": 0},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.Execute(context.Background(), Request{Source: "broken"})
	require.NoError(t, err)

	assert.False(t, result.Compiled())
	assert.Equal(t, "error: expected ';'", result.CompileError)
}

func TestExecuteInterpretedLanguageNoCompileStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"run": map[string]interface{}{"stdout": "ok", "stderr": "", "code": 0},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.Execute(context.Background(), Request{Source: "print('ok')", Language: "python", Version: "3.10"})
	require.NoError(t, err)
	assert.True(t, result.Compiled())
	assert.Equal(t, "ok", result.Stdout)
}

func TestExecuteVersionPinOnlyForConfiguredLanguage(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"run": map[string]interface{}{"stdout": "", "stderr": "", "code": 0},
		})
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	// A request in the configured language inherits the pinned version.
	_, err := client.Execute(context.Background(), Request{Source: "x", Language: "c++"})
	require.NoError(t, err)
	assert.Equal(t, "c++", captured["language"])
	assert.Equal(t, "10.2.0", captured["version"])

	// Any other language runs whatever the gateway has installed.
	_, err = client.Execute(context.Background(), Request{Source: "x", Language: "python"})
	require.NoError(t, err)
	assert.Equal(t, "python", captured["language"])
	assert.Equal(t, "*", captured["version"])
}

func TestExecuteGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Execute(context.Background(), Request{Source: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestExecuteUnreachableGateway(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.Execute(context.Background(), Request{Source: "x"})
	require.Error(t, err)
}
