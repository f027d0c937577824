package model_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/yeisme/docpipe/pkg/internal/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.Status
		want     bool
	}{
		{model.StatusUploaded, model.StatusIngestionStarted, true},
		{model.StatusUploaded, model.StatusIngesting, false},
		{model.StatusUploaded, model.StatusReady, false},
		{model.StatusIngestionStarted, model.StatusIngesting, true},
		{model.StatusIngesting, model.StatusIngesting, true},
		{model.StatusIngestionStarted, model.StatusReady, false},
		{model.StatusIngesting, model.StatusReady, true},
		{model.StatusIngestionStarted, model.StatusFailed, true},
		{model.StatusIngesting, model.StatusFailed, true},
		{model.StatusUploaded, model.StatusFailed, false},
		{model.StatusReady, model.StatusIngesting, false},
		{model.StatusFailed, model.StatusReady, false},
		{model.StatusReady, model.StatusUploaded, false},
	}

	for _, c := range cases {
		if got := model.CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

// 任何合法迁移都不会降低层级.
func TestTransitionsNeverRegress(t *testing.T) {
	for _, to := range model.AllStatuses {
		for _, from := range model.Predecessors(to) {
			if to.Rank() < from.Rank() {
				t.Errorf("%s -> %s regresses", from, to)
			}
		}
	}
}

func TestPathTo(t *testing.T) {
	path := model.PathTo(model.StatusIngestionStarted, model.StatusReady)
	if len(path) != 2 || path[0] != model.StatusIngesting || path[1] != model.StatusReady {
		t.Fatalf("unexpected path %v", path)
	}

	if p := model.PathTo(model.StatusReady, model.StatusIngesting); p != nil {
		t.Fatalf("terminal state must not have a path, got %v", p)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := model.ParseStatus(" ready ")
	if err != nil || s != model.StatusReady {
		t.Fatalf("ParseStatus = %v, %v", s, err)
	}

	if _, err := model.ParseStatus("PENDING"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestNormalizeDocumentType(t *testing.T) {
	if got := model.NormalizeDocumentType("IEP"); got != model.DocumentTypeIEP {
		t.Errorf("got %s", got)
	}

	if got := model.NormalizeDocumentType("invoice"); got != model.DocumentTypeOther {
		t.Errorf("unknown type should normalise to other, got %s", got)
	}
}

func TestTruncateReason(t *testing.T) {
	if got := model.TruncateReason("corrupt"); got != "corrupt" {
		t.Fatalf("short reason changed: %q", got)
	}

	exact := strings.Repeat("x", model.MaxFailureReasonBytes)
	if got := model.TruncateReason(exact); got != exact {
		t.Fatalf("reason at limit changed, len %d", len(got))
	}

	// 254 个 ASCII 后跟一个三字节字符，不能切在字符中间
	long := strings.Repeat("x", model.MaxFailureReasonBytes-1) + "错误原因"
	got := model.TruncateReason(long)
	if len(got) > model.MaxFailureReasonBytes || !utf8.ValidString(got) {
		t.Fatalf("bad truncation: len %d valid %v", len(got), utf8.ValidString(got))
	}

	if got != strings.Repeat("x", model.MaxFailureReasonBytes-1) {
		t.Fatalf("unexpected prefix kept: %q", got[len(got)-4:])
	}
}

func TestDeletionResourcesOrder(t *testing.T) {
	want := []model.Resource{model.ResourceSidecars, model.ResourceObjects, model.ResourceRecords}
	if len(model.DeletionResources) != len(want) {
		t.Fatalf("got %v", model.DeletionResources)
	}

	for i, r := range want {
		if model.DeletionResources[i] != r {
			t.Fatalf("step %d: got %s, want %s", i, model.DeletionResources[i], r)
		}
	}
}
