package flows

import (
	"testing"
	"time"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer ", "", false},
		{"", "", false},
		{"bearer abc", "", false},
		{"Basic abc", "", false},
		{"abc.def.ghi", "", false},
	}
	for _, tc := range cases {
		token, ok := BearerToken(tc.header)
		if token != tc.token || ok != tc.ok {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tc.header, token, ok, tc.token, tc.ok)
		}
	}
}

func TestValidStateTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Configured TTL wins while the token outlives it.
	if got := validStateTTL(5*time.Minute, now.Add(time.Hour), now); got != 5*time.Minute {
		t.Fatalf("got %v, want 5m", got)
	}
	// The entry can never outlive the token.
	if got := validStateTTL(time.Hour, now.Add(time.Minute), now); got != time.Minute {
		t.Fatalf("got %v, want 1m", got)
	}
	// Zero configured TTL means cap at remaining life.
	if got := validStateTTL(0, now.Add(time.Minute), now); got != time.Minute {
		t.Fatalf("got %v, want 1m", got)
	}
	// Expired tokens yield zero.
	if got := validStateTTL(time.Hour, now.Add(-time.Minute), now); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestPrepareRefreshRow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	minter := testMinter(now)

	plaintext, row, err := minter.PrepareRefreshRow("sub-1")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if plaintext == "" || row == nil {
		t.Fatal("empty result")
	}
	if row.SubjectID != "sub-1" || !row.Active(now) {
		t.Fatalf("bad row: %+v", row)
	}
	if !row.ExpiresAt.Equal(now.Add(minter.RefreshTokenTTL)) {
		t.Fatalf("expiry = %v", row.ExpiresAt)
	}
}
