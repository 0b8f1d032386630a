package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

type fakeUsers struct {
	byEmail  map[string]*User
	touched  map[int64]time.Time
	findErr  error
	touchErr error
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUsers) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	if f.touchErr != nil {
		return f.touchErr
	}
	f.touched[id] = at
	return nil
}

type fakeRoles map[int64]string

func (f fakeRoles) RoleNameByID(_ context.Context, id int64) (string, error) {
	name, ok := f[id]
	if !ok {
		return "", storage.ErrNotFound
	}
	return name, nil
}

func newLoginFixture(t *testing.T) (*Service, *fakeUsers, *Verifier, *observability.Metrics) {
	t.Helper()
	pub, priv := newKeyPair(t)
	issuer, _ := NewIssuer(priv)
	verifier, _ := NewVerifier(pub)

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	users := &fakeUsers{
		byEmail: map[string]*User{
			"mgr@example.com":      {ID: 7, Username: "mgr", Email: "mgr@example.com", PasswordHash: hash, RoleID: 3, IsActive: true, EmployeeID: int64Ptr(42)},
			"disabled@example.com": {ID: 8, Username: "gone", Email: "disabled@example.com", PasswordHash: hash, RoleID: 4, IsActive: false},
		},
		touched: map[int64]time.Time{},
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewService(users, fakeRoles{3: "Manager", 4: "Employee"}, issuer, metrics), users, verifier, metrics
}

func TestLogin_Success(t *testing.T) {
	svc, users, verifier, metrics := newLoginFixture(t)

	result, err := svc.Login(context.Background(), " mgr@example.com ", "correct horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.RoleName != "Manager" {
		t.Errorf("RoleName = %q", result.User.RoleName)
	}
	if _, ok := users.touched[7]; !ok {
		t.Error("last login was not recorded")
	}
	if result.User.LastLogin == nil {
		t.Error("returned user should carry the new last login")
	}

	claims, err := verifier.Verify(result.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != 7 || claims.RoleID != 3 || claims.Role != "Manager" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.EmployeeID == nil || *claims.EmployeeID != 42 {
		t.Errorf("EmployeeID = %v", claims.EmployeeID)
	}

	if got := testutil.ToFloat64(metrics.LoginAttemptsTotal.WithLabelValues(LoginSuccess)); got != 1 {
		t.Errorf("success count = %v", got)
	}
}

func TestLogin_Failures(t *testing.T) {
	svc, _, _, metrics := newLoginFixture(t)

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"missing email", "", "x", ErrMissingCredentials},
		{"missing password", "mgr@example.com", "", ErrMissingCredentials},
		{"unknown user", "nobody@example.com", "correct horse", ErrInvalidCredentials},
		{"wrong password", "mgr@example.com", "wrong", ErrInvalidCredentials},
		{"inactive account", "disabled@example.com", "correct horse", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("Login() error = %v, want %v", err, tt.want)
			}
		})
	}

	if got := testutil.ToFloat64(metrics.LoginAttemptsTotal.WithLabelValues(LoginFailure)); got != float64(len(tests)) {
		t.Errorf("failure count = %v, want %d", got, len(tests))
	}
}

func TestLogin_StoreErrors(t *testing.T) {
	svc, users, _, _ := newLoginFixture(t)

	users.findErr = errors.New("connection reset")
	if _, err := svc.Login(context.Background(), "mgr@example.com", "correct horse"); err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("a store failure must not look like bad credentials: %v", err)
	}

	users.findErr = nil
	users.touchErr = errors.New("read only")
	if _, err := svc.Login(context.Background(), "mgr@example.com", "correct horse"); err == nil {
		t.Error("expected an error when last login cannot be recorded")
	}
}

func TestLogin_UnknownRole(t *testing.T) {
	svc, users, _, _ := newLoginFixture(t)
	users.byEmail["mgr@example.com"].RoleID = 99

	if _, err := svc.Login(context.Background(), "mgr@example.com", "correct horse"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Login() error = %v, want wrapped ErrNotFound", err)
	}
}

func TestInsufficientPermissionError(t *testing.T) {
	err := error(&InsufficientPermissionError{Required: []string{"manage_permissions", "view_team_score_cards"}})

	if !errors.Is(err, ErrInsufficientPermission) {
		t.Error("should match ErrInsufficientPermission")
	}
	var perr *InsufficientPermissionError
	if !errors.As(err, &perr) || len(perr.Required) != 2 {
		t.Errorf("errors.As failed: %v", perr)
	}
	if !IsAuthError(err) || !IsAuthError(ErrAccessDenied) || IsAuthError(errors.New("other")) {
		t.Error("IsAuthError misclassified")
	}
}
