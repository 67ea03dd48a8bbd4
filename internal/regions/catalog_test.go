package regions

import "testing"

func TestCatalogOrdering(t *testing.T) {
	c := New([]Descriptor{
		{ID: "b", Priority: 2},
		{ID: "a", Priority: 1},
		{ID: "c", Priority: 1},
	})
	ids := c.IDs()
	want := []string{"a", "c", "b"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestCatalogLookup(t *testing.T) {
	c := Default()
	if !c.Contains("eu-west-1") {
		t.Fatal("expected eu-west-1 in default catalog")
	}
	d, ok := c.Get("eu-west-1")
	if !ok {
		t.Fatal("Get(eu-west-1) missing")
	}
	if !d.DataResidency {
		t.Fatal("eu-west-1 should be flagged for data residency")
	}
	if c.Contains("mars-north-1") {
		t.Fatal("unknown region should not be present")
	}
}
