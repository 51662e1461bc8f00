package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/fabtrack/internal/api"
	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/access"
)

type testHandler struct {
	actor  access.Actor
	method string
	err    error
}

func (h *testHandler) Handle(_ context.Context, actor access.Actor, method string, params json.RawMessage) (any, error) {
	h.actor = actor
	h.method = method
	if h.err != nil {
		return nil, h.err
	}
	return map[string]string{"actor": actor.ID}, nil
}

func newTestServer(t *testing.T, handler Dispatcher) *httptest.Server {
	t.Helper()
	keys := StaticKeys{"token": access.NewActor("planner", "*")}
	server := httptest.NewServer(NewServer(handler, Options{Auth: AuthMiddleware(keys)}))
	t.Cleanup(server.Close)
	return server
}

func postRPC(t *testing.T, url, token, body string) (*http.Response, Response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/rpc", bytes.NewBufferString(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHTTPServer_RPC(t *testing.T) {
	handler := &testHandler{}
	server := newTestServer(t, handler)

	resp, out := postRPC(t, server.URL, "token", `{"jsonrpc":"2.0","method":"list_units","id":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, out.Error)
	require.Equal(t, "list_units", handler.method)
	require.Equal(t, "planner", handler.actor.ID)
	require.Equal(t, map[string]any{"actor": "planner"}, out.Result)
}

func TestHTTPServer_RPCRequiresToken(t *testing.T) {
	server := newTestServer(t, &testHandler{})

	resp, _ := postRPC(t, server.URL, "", `{"jsonrpc":"2.0","method":"list_units","id":1}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPServer_RPCErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		api  string
	}{
		{"unknown method", api.MapError(fmt.Errorf("%w: nope", api.ErrUnknownMethod)), ErrMethodNotFound, api.CodeUnknownMethod},
		{"rejected", api.MapError(domain.Validation("reason", "required")), ErrApplication, api.CodeValidation},
		{"unclassified", fmt.Errorf("boom"), ErrInternal, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(t, &testHandler{err: tc.err})
			_, out := postRPC(t, server.URL, "token", `{"jsonrpc":"2.0","method":"hold_activity","id":7}`)
			require.NotNil(t, out.Error)
			require.Equal(t, tc.code, out.Error.Code)
			require.Equal(t, float64(7), out.ID)
			if tc.api != "" {
				data, ok := out.Error.Data.(map[string]any)
				require.True(t, ok)
				require.Equal(t, tc.api, data["code"])
			} else {
				require.NotContains(t, out.Error.Message, "boom")
			}
		})
	}
}

func TestHTTPServer_InvalidEnvelope(t *testing.T) {
	server := newTestServer(t, &testHandler{})

	_, out := postRPC(t, server.URL, "token", `{"jsonrpc":"2.0","id":1}`)
	require.Equal(t, ErrInvalidReq, out.Error.Code)

	_, out = postRPC(t, server.URL, "token", `{"jsonrpc":`)
	require.Equal(t, ErrParseCode, out.Error.Code)
}

func TestHTTPServer_HealthAndMetricsAreOpen(t *testing.T) {
	server := newTestServer(t, &testHandler{})

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "go_goroutines")
}

func TestHTTPServer_Methods(t *testing.T) {
	server := newTestServer(t, &testHandler{})

	req, err := http.NewRequest(http.MethodGet, server.URL+"/methods", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var methods []api.Method
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&methods))
	require.Len(t, methods, len(api.Methods()))
}
