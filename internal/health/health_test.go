package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return rec.Code, resp
}

func TestLive(t *testing.T) {
	c := New()
	if code, resp := get(t, c.LiveHandler(), "/live"); code != http.StatusOK || resp.Status != StatusUp {
		t.Fatalf("live = %d %s", code, resp.Status)
	}

	c.SetShuttingDown()
	code, resp := get(t, c.LiveHandler(), "/live")
	if code != http.StatusServiceUnavailable || resp.Components["process"].Message != "shutting down" {
		t.Fatalf("live after shutdown = %d %+v", code, resp)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]CheckFunc
		wantCode int
		wantDown string
	}{
		{
			name:     "no checks",
			wantCode: http.StatusOK,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"stream_channel": func(context.Context) error { return nil },
				"sender":         func(context.Context) error { return nil },
			},
			wantCode: http.StatusOK,
		},
		{
			name: "channel down",
			checks: map[string]CheckFunc{
				"stream_channel": func(context.Context) error { return errors.New("TRANSIENT_FAILURE") },
				"sender":         func(context.Context) error { return nil },
			},
			wantCode: http.StatusServiceUnavailable,
			wantDown: "stream_channel",
		},
		{
			name: "check sees deadline",
			checks: map[string]CheckFunc{
				"slow": func(ctx context.Context) error {
					if _, ok := ctx.Deadline(); !ok {
						return errors.New("no deadline")
					}
					return nil
				},
			},
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			for name, fn := range tt.checks {
				c.RegisterReadiness(name, fn)
			}
			code, resp := get(t, c.ReadyHandler(), "/ready")
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d", code, tt.wantCode)
			}
			if len(resp.Components) != len(tt.checks) {
				t.Errorf("components = %v", resp.Components)
			}
			if tt.wantDown != "" && resp.Components[tt.wantDown].Status != StatusDown {
				t.Errorf("%s not reported down: %+v", tt.wantDown, resp.Components)
			}
		})
	}
}

func TestReady_ShuttingDown(t *testing.T) {
	c := New()
	c.RegisterReadiness("sender", func(context.Context) error { return nil })
	c.SetShuttingDown()
	if code, _ := get(t, c.ReadyHandler(), "/ready"); code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", code)
	}
}

func TestRegister(t *testing.T) {
	c := New()
	mux := http.NewServeMux()
	c.Register(mux)
	for _, path := range []string{"/live", "/ready"} {
		if code, _ := get(t, mux, path); code != http.StatusOK {
			t.Errorf("%s = %d", path, code)
		}
	}
}
