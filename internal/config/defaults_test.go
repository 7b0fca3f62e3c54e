// ABOUTME: Tests for configuration defaults
// ABOUTME: Verifies constants are properly defined

package config

import (
	"testing"
	"time"
)

func TestDefaultHTTPTimeout(t *testing.T) {
	if DefaultHTTPTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %v", DefaultHTTPTimeout)
	}
}

func TestConnectTimeoutIsBounded(t *testing.T) {
	if DefaultConnectTimeout <= 0 || DefaultConnectTimeout >= time.Second {
		t.Errorf("connect timeout should be a few hundred ms, got %v", DefaultConnectTimeout)
	}
}

func TestSyncConstants(t *testing.T) {
	if DefaultUpdateWindow != 30*time.Minute {
		t.Errorf("expected 30m update window, got %v", DefaultUpdateWindow)
	}
	if DefaultPageSize > DefaultHeadlineLimit {
		t.Error("page size should not exceed headline limit")
	}
	if DefaultRetainLimit < DefaultHeadlineLimit {
		t.Error("retain limit should hold at least one full headline fetch")
	}
}
