// ABOUTME: Tests for category, feed and virtual category helpers
// ABOUTME: Checks reserved ids, label detection and feed icons

package models

import "testing"

func TestAsVirtual(t *testing.T) {
	for _, v := range VirtualCategories {
		got, ok := AsVirtual(int(v))
		if !ok || got != v {
			t.Errorf("AsVirtual(%d) = %v, %v", v, got, ok)
		}
	}

	for _, id := range []int{0, 5, -5, -11} {
		if _, ok := AsVirtual(id); ok {
			t.Errorf("AsVirtual(%d) should not be virtual", id)
		}
	}
}

func TestIsLabel(t *testing.T) {
	if IsLabel(-4) {
		t.Error("-4 is a virtual category, not a label")
	}
	if !IsLabel(-11) || !IsLabel(-1027) {
		t.Error("ids at or below -11 are labels")
	}
}

func TestCategoryIsVirtual(t *testing.T) {
	if (Category{ID: Uncategorized}).IsVirtual() {
		t.Error("uncategorized is a real category")
	}
	if !(Category{ID: int(VirtualFresh)}).IsVirtual() {
		t.Error("fresh should be virtual")
	}
}

func TestFeedHasIcon(t *testing.T) {
	f := Feed{ID: 3}
	if f.HasIcon() {
		t.Error("new feed has no icon")
	}
	f.Icon = []byte{0x00, 0x01}
	if !f.HasIcon() {
		t.Error("icon bytes should be reported")
	}
}
