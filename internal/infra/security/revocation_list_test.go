package security

import (
	"context"
	"testing"
	"time"
)

func TestRevocationListExpiresEntries(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	list := NewRevocationList(0).WithClock(func() time.Time { return clock })

	if err := list.MarkRevoked(ctx, "revoked-jti", "logout", 2*time.Minute); err != nil {
		t.Fatalf("MarkRevoked failed: %v", err)
	}

	revoked, reason, err := list.IsRevoked(ctx, "revoked-jti")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if !revoked || reason != "logout" {
		t.Fatalf("expected revoked with reason logout, got %v %q", revoked, reason)
	}

	clock = base.Add(3 * time.Minute)
	revoked, _, _ = list.IsRevoked(ctx, "revoked-jti")
	if revoked {
		t.Fatalf("expected jti to lapse after its ttl")
	}
	if list.Len() != 0 {
		t.Fatalf("expected expired entry to be pruned")
	}
}

func TestRevocationListEvictsSoonestExpiring(t *testing.T) {
	ctx := context.Background()
	list := NewRevocationList(2)

	_ = list.MarkRevoked(ctx, "short", "", time.Minute)
	_ = list.MarkRevoked(ctx, "long", "", time.Hour)
	_ = list.MarkRevoked(ctx, "newest", "", 30*time.Minute)

	if revoked, _, _ := list.IsRevoked(ctx, "short"); revoked {
		t.Fatalf("expected soonest-expiring entry to be evicted")
	}
	for _, jti := range []string{"long", "newest"} {
		if revoked, _, _ := list.IsRevoked(ctx, jti); !revoked {
			t.Fatalf("expected %s to remain revoked", jti)
		}
	}
}

func TestRevocationListRejectsBlankJTI(t *testing.T) {
	list := NewRevocationList(0)
	if err := list.MarkRevoked(context.Background(), " ", "", time.Minute); err == nil {
		t.Fatal("expected error for blank jti")
	}
	if err := list.MarkRevoked(context.Background(), "dead", "", 0); err != nil {
		t.Fatalf("expected non-positive ttl to be ignored, got %v", err)
	}
	if revoked, _, _ := list.IsRevoked(context.Background(), "dead"); revoked {
		t.Fatal("expected zero-ttl revocation to be skipped")
	}
}
