package harness

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRun(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/command", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","exitCode":3,"message":"INFO started\n"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/", WithToken("secret"))
	require.NoError(t, err)

	req := Request{Command: "idm resetpassword -u brian", Inputs: []string{"pw", "pw"}}
	env, err := client.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, req, got)
	require.Equal(t, &Envelope{Status: StatusOK, ExitCode: 3, Message: "INFO started\n", HTTPStatus: http.StatusOK}, env)
	require.False(t, env.Succeeded())
}

func TestClientRunKeepsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"ERROR","exitCode":-1,"message":"busy"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	env, err := client.Run(context.Background(), Request{Command: "true", Raw: true})
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, env.HTTPStatus)
	require.Equal(t, StatusError, env.Status)
}

func TestClientRunTransportErrors(t *testing.T) {
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer garbage.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	for name, url := range map[string]string{"undecodable body": garbage.URL, "unreachable": closedURL} {
		t.Run(name, func(t *testing.T) {
			client, err := NewClient(url)
			require.NoError(t, err)

			_, err = client.Run(context.Background(), Request{Command: "true", Raw: true})
			var transport *TransportError
			require.ErrorAs(t, err, &transport)
		})
	}
}

func TestClientPingAndEnvironment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("PONG"))
	})
	mux.HandleFunc("GET /env", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"OC_STORAGE_PATH": "/srv/storage"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	require.NoError(t, client.Ping(context.Background()))
	environ, err := client.Environment(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/srv/storage", environ["OC_STORAGE_PATH"])
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
}
