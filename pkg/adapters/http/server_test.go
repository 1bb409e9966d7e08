package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/tsw/pkg/adapters/memory"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/instances"
)

func seed(t *testing.T) (*instances.Manager, *domain.Instance) {
	t.Helper()
	mgr := instances.NewManager(memory.NewStore())
	inst := domain.NewInstance("host-a", "alpha")
	inst.Password = "hunter2"
	created, err := mgr.Create(context.Background(), inst)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = mgr.Update(context.Background(), created.ID, func(i *domain.Instance) (*domain.Event, error) {
		return domain.NewEvent(i.ID, domain.EventOutput, "Choose World: "), nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	return mgr, created
}

func TestGetHealth(t *testing.T) {
	handler := NewHandler(memory.NewStore())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("Unexpected body %q", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tsw_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	handler := NewHandler(memory.NewStore(), WithGatherer(reg))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tsw_test_total 1") {
		t.Errorf("Metric missing from %q", w.Body.String())
	}
}

func TestListInstances(t *testing.T) {
	mgr, inst := seed(t)
	handler := NewHandler(mgr.Store())

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 1},
		{"matching host", "?host=host-a", 1},
		{"other host", "?host=host-b", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/instances"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200 OK, got %d", w.Code)
			}
			var got []domain.Instance
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("Expected %d instances, got %d", tt.want, len(got))
			}
			if tt.want > 0 && got[0].ID != inst.ID {
				t.Errorf("Expected %s, got %s", inst.ID, got[0].ID)
			}
		})
	}
}

func TestGetInstance_HidesPassword(t *testing.T) {
	mgr, inst := seed(t)
	handler := NewHandler(mgr.Store())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/instances/"+inst.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "hunter2") {
		t.Error("Password leaked in response")
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/instances/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestListEvents(t *testing.T) {
	mgr, inst := seed(t)
	handler := NewHandler(mgr.Store())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/instances/"+inst.ID+"/events?limit=10", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", w.Code)
	}
	var events []domain.Event
	if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.EventOutput {
		t.Errorf("Unexpected events %+v", events)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/instances/"+inst.ID+"/events?limit=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/instances/missing/events", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestStreamInstance(t *testing.T) {
	mgr, inst := seed(t)
	srv := httptest.NewServer(NewHandler(mgr.Store(), WithHub(mgr.Hub())))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/instances/"+inst.ID+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if strings.HasPrefix(scanner.Text(), "data: {") {
				lines <- scanner.Text()
			}
		}
		close(lines)
	}()

	first := <-lines
	if !strings.Contains(first, `"state":"DEFINED"`) {
		t.Fatalf("Expected initial snapshot, got %q", first)
	}

	_, err = mgr.Update(context.Background(), inst.ID, func(i *domain.Instance) (*domain.Event, error) {
		i.SetState(domain.StateValid)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case line := <-lines:
		if !strings.Contains(line, `"state":"VALID"`) {
			t.Errorf("Expected VALID snapshot, got %q", line)
		}
		if strings.Contains(line, "hunter2") {
			t.Error("Password leaked in stream")
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for snapshot")
	}
}

func TestStreamInstance_DisabledWithoutHub(t *testing.T) {
	mgr, inst := seed(t)
	handler := NewHandler(mgr.Store())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/instances/"+inst.ID+"/stream", nil))
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected stream to be unavailable, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := NewHandler(memory.NewStore())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/instances", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}
