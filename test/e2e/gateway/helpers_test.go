package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/app"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * The policy provider is played by WireMock in a container; the gateway runs
 * in-process against it so each test can pick its own configuration.
 */

const wiremockImage = "wiremock/wiremock:3.9.1"

// setupProvider starts WireMock and returns its base URL.
func setupProvider(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("e2e: skipped in -short mode")
	}
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        wiremockImage,
			ExposedPorts: []string{"8080/tcp"},
			WaitingFor:   wait.ForHTTP("/__admin/mappings").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "8080/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

// stub registers one WireMock mapping.
func stub(t *testing.T, providerURL string, mapping map[string]any) {
	t.Helper()
	body, err := json.Marshal(mapping)
	require.NoError(t, err)

	resp, err := http.Post(providerURL+"/__admin/mappings", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func okJSON(method, urlPath string, query map[string]string, body any) map[string]any {
	req := map[string]any{"method": method, "urlPath": urlPath}
	if len(query) > 0 {
		qp := map[string]any{}
		for k, v := range query {
			qp[k] = map[string]string{"equalTo": v}
		}
		req["queryParameters"] = qp
	}
	return map[string]any{
		"request":  req,
		"response": map[string]any{"status": 200, "jsonBody": body},
	}
}

// stubProvider loads the fixture data every test relies on.
func stubProvider(t *testing.T, providerURL string) {
	t.Helper()
	stub(t, providerURL, okJSON("GET", "/policies", map[string]string{"owner": "alice"}, []map[string]any{
		{"polizaId": "POL-1", "descripcion": "Seguro hogar", "coberturas": []string{"incendio", "robo"}},
		{"polizaId": "POL-2", "descripcion": "Seguro auto", "coberturas": []string{}},
	}))
	stub(t, providerURL, okJSON("GET", "/policies/POL-1", nil,
		map[string]any{"polizaId": "POL-1", "descripcion": "Seguro hogar", "coberturas": []string{"incendio", "robo"}}))
	stub(t, providerURL, okJSON("GET", "/policies/POL-1/conditions", nil, []string{"Franquicia 300"}))
	stub(t, providerURL, okJSON("GET", "/policies/POL-1/claims", nil, []map[string]any{
		{"siniestroId": "SIN-1", "descripcion": "Fuga de agua", "estado": "abierto", "fecha": "2026-02-01"},
	}))
	stub(t, providerURL, okJSON("GET", "/claims/SIN-1", nil,
		map[string]any{"siniestroId": "SIN-1", "descripcion": "Fuga de agua", "estado": "abierto", "fecha": "2026-02-01"}))
	stub(t, providerURL, map[string]any{
		"request":  map[string]any{"method": "GET", "urlPath": "/claims/BROKEN"},
		"response": map[string]any{"fault": "CONNECTION_RESET_BY_PEER"},
	})
}

// requestCount asks WireMock how many requests matched urlPath.
func requestCount(t *testing.T, providerURL, urlPath string) int {
	t.Helper()
	body, err := json.Marshal(map[string]any{"method": "GET", "urlPath": urlPath})
	require.NoError(t, err)

	resp, err := http.Post(providerURL+"/__admin/requests/count", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Count
}

// startGateway boots the gateway in-process against providerURL.
func startGateway(t *testing.T, providerURL string, mutate func(*app.Config)) string {
	t.Helper()

	cfg := app.LoadConfig()
	cfg.UpstreamBaseURL = providerURL
	cfg.Secret = "e2e-shared-secret"
	cfg.Env = "test"
	cfg.LogLevel = "warn"
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}
