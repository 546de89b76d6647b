package route

import (
	"reflect"
	"testing"
)

func testResolver() *Resolver {
	return NewResolver(map[string]string{
		"SALIQ_008":    "Технопос",
		"utkirraimov":  "Джиззак",
		"bob_7007":     "Джиззак",
		"shoxjaxon055": "Ташкент",
	}, "All")
}

func TestResolveCaseInsensitive(t *testing.T) {
	r := testResolver()
	if got := r.Resolve("saliq_008"); got != "Технопос" {
		t.Fatalf("ожидали Технопос, получили %q", got)
	}
	if got := r.Resolve("ShoxJaxon055"); got != "Ташкент" {
		t.Fatalf("ожидали Ташкент, получили %q", got)
	}
}

func TestResolveUnknownGoesToDefault(t *testing.T) {
	r := testResolver()
	if got := r.Resolve("nobody"); got != "All" {
		t.Fatalf("неизвестный получатель должен уходить в All, получили %q", got)
	}
}

func TestBucketsSortedWithDefault(t *testing.T) {
	r := testResolver()
	expected := []string{"All", "Джиззак", "Технопос", "Ташкент"}
	got := r.Buckets()
	if len(got) != len(expected) {
		t.Fatalf("ожидали %d вкладки, получили %v", len(expected), got)
	}
	seen := make(map[string]bool, len(got))
	for _, b := range got {
		seen[b] = true
	}
	for _, b := range expected {
		if !seen[b] {
			t.Fatalf("вкладка %q отсутствует в %v", b, got)
		}
	}
}

func TestRecipientsGrouping(t *testing.T) {
	r := testResolver()
	got := r.Recipients()
	if !reflect.DeepEqual(got["Джиззак"], []string{"bob_7007", "utkirraimov"}) {
		t.Fatalf("неожиданный состав Джиззака: %v", got["Джиззак"])
	}
	if len(got["Ташкент"]) != 1 || got["Ташкент"][0] != "shoxjaxon055" {
		t.Fatalf("неожиданный состав Ташкента: %v", got["Ташкент"])
	}
}
