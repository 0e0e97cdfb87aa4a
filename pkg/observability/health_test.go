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
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// newPostgresChecker builds a checker whose store pings the mocked database
func newPostgresChecker(t *testing.T, pingErr error) (*HealthChecker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ping := mock.ExpectPing()
	if pingErr != nil {
		ping.WillReturnError(pingErr)
	}
	return NewHealthChecker(pingFunc(db.PingContext), db, nil, "test"), mock
}

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil, "test")

	rr := httptest.NewRecorder()
	checker.Liveness(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Liveness returned %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}
}

func TestHealthChecker_Check_NoDependencies(t *testing.T) {
	status := NewHealthChecker(nil, nil, nil, "v1.2.3").Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", status.Status)
	}
	if status.Version != "v1.2.3" {
		t.Errorf("Expected version v1.2.3, got %s", status.Version)
	}
	if len(status.Dependencies) != 0 {
		t.Errorf("Expected no dependencies, got %v", status.Dependencies)
	}
}

func TestHealthChecker_Check_CredentialStore(t *testing.T) {
	t.Run("healthy postgres", func(t *testing.T) {
		checker, mock := newPostgresChecker(t, nil)
		mock.ExpectQuery("SELECT 1 FROM session_tokens").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		status := checker.Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s (%v)", status.Status, status.Dependencies)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("no credentials yet is healthy", func(t *testing.T) {
		checker, mock := newPostgresChecker(t, nil)
		mock.ExpectQuery("SELECT 1 FROM session_tokens").WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

		if status := checker.Check(context.Background()); status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s (%v)", status.Status, status.Dependencies)
		}
	})

	t.Run("unmigrated schema is unhealthy", func(t *testing.T) {
		checker, mock := newPostgresChecker(t, nil)
		mock.ExpectQuery("SELECT 1 FROM session_tokens").WillReturnError(errors.New(`relation "session_tokens" does not exist`))

		status := checker.Check(context.Background())
		if status.Status != StatusUnhealthy {
			t.Errorf("Expected unhealthy, got %s", status.Status)
		}
	})

	t.Run("ping failure makes service unhealthy", func(t *testing.T) {
		checker, _ := newPostgresChecker(t, errors.New("connection refused"))

		status := checker.Check(context.Background())
		if status.Status != StatusUnhealthy {
			t.Errorf("Expected unhealthy, got %s", status.Status)
		}
		if msg := status.Dependencies[DependencyCredentialStore].Message; msg != "connection refused" {
			t.Errorf("Unexpected message %q", msg)
		}
	})

	t.Run("memory store", func(t *testing.T) {
		checker := NewHealthChecker(pingFunc(func(context.Context) error { return nil }), nil, nil, "test")

		status := checker.Check(context.Background())
		if _, ok := status.Dependencies[DependencyCredentialStore]; !ok || status.Status != StatusHealthy {
			t.Errorf("Expected healthy credential store, got %v", status)
		}
	})
}

func TestHealthChecker_Check_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(nil, nil, client, "test")

	t.Run("redis up", func(t *testing.T) {
		status := checker.Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s", status.Status)
		}
	})

	t.Run("redis down degrades", func(t *testing.T) {
		mr.SetError("LOADING")
		defer mr.SetError("")

		status := checker.Check(context.Background())
		if status.Status != StatusDegraded {
			t.Errorf("Expected degraded, got %s", status.Status)
		}
	})
}

func TestHealthChecker_Readiness_Unhealthy(t *testing.T) {
	checker, _ := newPostgresChecker(t, errors.New("down"))

	rr := httptest.NewRecorder()
	checker.Readiness(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rr.Code)
	}

	var body HealthStatus
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy body, got %s", body.Status)
	}
}

func TestRegisterHealthRoutes(t *testing.T) {
	serveMux := http.NewServeMux()
	RegisterHealthRoutes(serveMux, NewHealthChecker(nil, nil, nil, "test"))

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rr := httptest.NewRecorder()
		serveMux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s returned %d", path, rr.Code)
		}
	}
}
