package toolsurface

import "testing"

func TestOwnerDMRequiresMatchingChatAndOwner(t *testing.T) {
	cases := []struct {
		name   string
		x      *ExecContext
		expect bool
	}{
		{
			name:   "owner in own DM",
			x:      &ExecContext{OwnerID: 42, Caller: Caller{UserID: 42, ChatID: 42}},
			expect: true,
		},
		{
			name:   "owner acting in a group chat",
			x:      &ExecContext{OwnerID: 42, Caller: Caller{UserID: 42, ChatID: -100}},
			expect: false,
		},
		{
			name:   "non-owner in their own DM",
			x:      &ExecContext{OwnerID: 42, Caller: Caller{UserID: 7, ChatID: 7}},
			expect: false,
		},
	}
	for _, c := range cases {
		if got := ownerDM(c.x); got != c.expect {
			t.Errorf("%s: ownerDM = %v, want %v", c.name, got, c.expect)
		}
	}
}

func TestAddTrustedUserRejectsNonOwner(t *testing.T) {
	x := &ExecContext{OwnerID: 42, Caller: Caller{UserID: 7, ChatID: 7}}
	res := addTrustedUserSpec.Execute(nil, x, map[string]any{"user_id": float64(99)})
	if !res.IsError {
		t.Fatalf("expected non-owner grant to be rejected")
	}
}
