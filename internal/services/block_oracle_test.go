package services

import (
	"context"
	"errors"
	"testing"
)

func TestBlockOracleDirections(t *testing.T) {
	f := newFixture("a", "b")
	f.store.addBlock("a", "b")
	ctx := context.Background()

	check := func(name string, got bool, err error, want bool) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	got, err := f.oracle.IsBlockedBy(ctx, "b", "a")
	check("IsBlockedBy(b, a)", got, err, true)
	got, err = f.oracle.IsBlocked(ctx, "a", "b")
	check("IsBlocked(a, b)", got, err, true)
	got, err = f.oracle.IsBlocked(ctx, "b", "a")
	check("IsBlocked(b, a)", got, err, true)
	got, err = f.oracle.HasBlocked(ctx, "a", "b")
	check("HasBlocked(a, b)", got, err, true)
	got, err = f.oracle.HasBlocked(ctx, "b", "a")
	check("HasBlocked(b, a)", got, err, false)
	got, err = f.oracle.IsBlockedBy(ctx, "a", "b")
	check("IsBlockedBy(a, b)", got, err, false)

	status, err := f.oracle.GetBlockStatus(ctx, "b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if !status.IsBlocked || status.IBlockedThem || !status.TheyBlockedMe {
		t.Fatalf("unexpected status from b's side: %+v", status)
	}
}

func TestBlockOracleEmptyIdentity(t *testing.T) {
	f := newFixture("a", "b")
	f.store.addBlock("a", "b")
	ctx := context.Background()

	for _, pair := range [][2]string{{"", "b"}, {"a", ""}, {"", ""}} {
		blocked, err := f.oracle.IsBlocked(ctx, pair[0], pair[1])
		if err != nil || blocked {
			t.Errorf("IsBlocked(%q, %q) = %v, %v; want false, nil", pair[0], pair[1], blocked, err)
		}
		has, err := f.oracle.HasBlocked(ctx, pair[0], pair[1])
		if err != nil || has {
			t.Errorf("HasBlocked(%q, %q) = %v, %v; want false, nil", pair[0], pair[1], has, err)
		}
	}
}

func TestBlockOracleStoreFailure(t *testing.T) {
	f := newFixture("a", "b")
	f.store.fail["blocks.exists"] = errors.New("connection refused")

	_, err := f.oracle.IsBlocked(context.Background(), "a", "b")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestVisibilityFilterBothDirections(t *testing.T) {
	f := newFixture("me", "x", "y", "z")
	f.store.addBlock("me", "x")
	f.store.addBlock("y", "me")

	ids, err := f.filter.FilterIDs(context.Background(), "me", []string{"x", "y", "z"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "z" {
		t.Fatalf("FilterIDs = %v, want [z]", ids)
	}
}
