package perf

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/navigation"
	"github.com/erp-system/erp/internal/rbac"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedIdentity struct{}

func (fixedIdentity) CurrentUser(r *http.Request) (gate.Identity, bool, error) {
	return gate.Identity{UserID: 1, Source: "session"}, true, nil
}

func (fixedIdentity) AssuranceLevels(r *http.Request, id gate.Identity) (gate.Levels, error) {
	return gate.Levels{Current: gate.AAL2, Required: gate.AAL2}, nil
}

type fixedProfiles struct{}

func (fixedProfiles) LoadProfile(ctx context.Context, userID int64) (gate.Profile, error) {
	return gate.Profile{ID: userID, Email: "admin@erp.local", IsActive: true}, nil
}

type fixedRoles struct{}

func (fixedRoles) UserRoles(ctx context.Context, userID int64) ([]rbac.RoleRef, error) {
	return []rbac.RoleRef{{ID: 1, Name: "admin", Level: 100, Permissions: rbac.SetOf(rbac.All()...)}}, nil
}

func newGate() *gate.Gate {
	return gate.New(gate.Config{
		Identity: fixedIdentity{},
		Profiles: fixedProfiles{},
		Roles:    fixedRoles{},
		Logger:   slogDiscard(),
	})
}

func TestGateLatencyTargets(t *testing.T) {
	g := newGate()
	handler := g.Middleware(g.RequireRoute(navigation.Default)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := gate.PrincipalFromContext(r.Context())
		_ = navigation.Default.Menu(p.Permissions)
		w.WriteHeader(http.StatusOK)
	})))

	samples := make([]time.Duration, 0, 200)
	for i := 0; i < 200; i++ {
		rr := httptest.NewRecorder()
		start := time.Now()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/betonara/reports", nil))
		samples = append(samples, time.Since(start))
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status %d", rr.Code)
		}
	}
	if p95 := percentile95(samples); p95 > 20*time.Millisecond {
		t.Fatalf("gate latency regression: p95=%s threshold=20ms", p95)
	}
}

func BenchmarkGateEvaluate(b *testing.B) {
	g := newGate()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := g.Evaluate(req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMenu(b *testing.B) {
	held := rbac.SetOf(rbac.PermDashboardView, rbac.PermBetonaraView, rbac.PermProfileEdit)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = navigation.Default.Menu(held)
	}
}

func BenchmarkAuthorized(b *testing.B) {
	held := rbac.SetOf(rbac.All()...)
	required := []rbac.Permission{rbac.PermBetonaraView, rbac.PermBetonaraExport}
	for i := 0; i < b.N; i++ {
		_ = rbac.Authorized(held, required...)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
