package healthcheck

import (
	"context"
	"testing"
)

type testChecker struct {
	items []CheckResult
}

func (c *testChecker) ListChecks(ctx context.Context, appID string) []CheckResult {
	return c.items
}

func TestCheckersListChecks(t *testing.T) {
	t.Parallel()

	checkers := Checkers{
		&testChecker{items: []CheckResult{{ID: "b", Status: StatusOK}}},
		nil,
		&testChecker{items: []CheckResult{{ID: "a", Status: StatusWarn}}},
	}
	items := checkers.ListChecks(context.Background(), "app-1")
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "a" || items[1].ID != "b" {
		t.Fatalf("expected items ordered by id, got %s, %s", items[0].ID, items[1].ID)
	}
}

func TestWorst(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		items []CheckResult
		want  string
	}{
		{name: "empty", want: StatusOK},
		{name: "unknown ignored", items: []CheckResult{{Status: StatusUnknown}, {Status: StatusOK}}, want: StatusOK},
		{name: "warn", items: []CheckResult{{Status: StatusOK}, {Status: StatusWarn}}, want: StatusWarn},
		{name: "error wins", items: []CheckResult{{Status: StatusWarn}, {Status: StatusError}}, want: StatusError},
	}
	for _, tc := range cases {
		if got := Worst(tc.items); got != tc.want {
			t.Fatalf("%s: want %s got %s", tc.name, tc.want, got)
		}
	}
}
