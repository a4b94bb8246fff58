package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakeGatewayChecker struct {
	err error
}

func (f *fakeGatewayChecker) Reachable(ctx context.Context) error {
	return f.err
}

func componentStatus(t *testing.T, body map[string]any, name string) string {
	t.Helper()
	components, ok := body["components"].(map[string]any)
	if !ok {
		t.Fatalf("expected components map in response, got %v", body)
	}
	component, ok := components[name].(map[string]any)
	if !ok {
		t.Fatalf("expected %q component in response, got %v", name, components)
	}
	status, _ := component["status"].(string)
	return status
}

func TestHealth_ReportsAllComponents(t *testing.T) {
	e := echo.New()
	// No DB and no Redis configured; gateway reachable.
	handler := NewHealthHandler(nil, nil, &fakeGatewayChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.Health(c); err != nil {
		t.Fatalf("Health returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if got := componentStatus(t, body, "database"); got != "down" {
		t.Errorf("expected database down, got %q", got)
	}
	if got := componentStatus(t, body, "redis"); got != "disabled" {
		t.Errorf("expected redis disabled, got %q", got)
	}
	if got := componentStatus(t, body, "gateway"); got != "up" {
		t.Errorf("expected gateway up, got %q", got)
	}
	if body["status"] != "down" {
		t.Errorf("expected overall status down without a database, got %v", body["status"])
	}
}

func TestHealth_GatewayUnreachableReported(t *testing.T) {
	e := echo.New()
	handler := NewHealthHandler(nil, nil, &fakeGatewayChecker{err: fmt.Errorf("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.Health(c); err != nil {
		t.Fatalf("Health returned error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if got := componentStatus(t, body, "gateway"); got != "down" {
		t.Errorf("expected gateway down, got %q", got)
	}
}
