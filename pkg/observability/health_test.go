package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

func TestHealthChecker_Healthy(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(db, client, "test")
	checker.AddProbe("role_directory", func(context.Context) error { return nil })

	status := checker.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Errorf("status = %s, want healthy (%+v)", status.Status, status.Dependencies)
	}
	for _, name := range []string{"database", "redis", "role_directory"} {
		if _, ok := status.Dependencies[name]; !ok {
			t.Errorf("missing dependency %s", name)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHealthChecker_RedisDownDegrades(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	status := NewHealthChecker(nil, client, "test").Check(context.Background())
	if status.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", status.Status)
	}
}

func TestHealthChecker_ReadinessUnhealthy(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("connection refused"))

	checker := NewHealthChecker(db, nil, "test")
	router := mux.NewRouter()
	RegisterHealthRoutes(router, checker)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", rec.Code)
	}
	var body HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Dependencies["database"].Message != "connection refused" {
		t.Errorf("database message = %q", body.Dependencies["database"].Message)
	}
}

func TestHealthChecker_FailingProbe(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "test")
	checker.AddProbe("role_directory", func(context.Context) error { return errors.New("not loaded") })

	if status := checker.Check(context.Background()); status.Status != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", status.Status)
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	router := mux.NewRouter()
	RegisterHealthRoutes(router, NewHealthChecker(nil, nil, "1.2.3"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d", rec.Code)
	}
	var body HealthStatus
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Version != "1.2.3" {
		t.Errorf("version = %q", body.Version)
	}
}
