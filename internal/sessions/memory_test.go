package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryRepository_CreateAndLookup(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s := &Session{
		ID:               "id-1",
		RefreshSecret:    "secret-1",
		RefreshExpiresAt: time.Now().UTC().Add(time.Hour),
		TokenVersion:     1,
	}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "id-1")
	if err != nil || got == nil {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if got.TokenVersion != 1 || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", got)
	}

	got, err = repo.GetByRefreshSecret(ctx, "secret-1")
	if err != nil || got == nil || got.ID != "id-1" {
		t.Fatalf("GetByRefreshSecret: got=%v err=%v", got, err)
	}

	// absent lookups report nil, nil
	got, err = repo.GetByID(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected absent record, got=%v err=%v", got, err)
	}
	got, err = repo.GetByRefreshSecret(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected absent record, got=%v err=%v", got, err)
	}
}

func TestMemoryRepository_RotateSecret(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, &Session{ID: "id-1", RefreshSecret: "old", TokenVersion: 1})

	rot := Rotation{NewSecret: "new", NewExpiresAt: time.Now().UTC().Add(time.Hour), NewVersion: 2}
	if err := repo.RotateSecret(ctx, "id-1", "old", rot); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, "id-1")
	if got.RefreshSecret != "new" || got.TokenVersion != 2 {
		t.Fatalf("rotation not applied: %+v", got)
	}

	// replaying the old secret must conflict
	err := repo.RotateSecret(ctx, "id-1", "old", Rotation{NewSecret: "newer", NewVersion: 3})
	if !errors.Is(err, ErrRefreshConflict) {
		t.Fatalf("expected ErrRefreshConflict, got %v", err)
	}
	got, _ = repo.GetByID(ctx, "id-1")
	if got.TokenVersion != 2 {
		t.Fatalf("conflicting rotation must not apply: %+v", got)
	}
}

// Two concurrent rotations on the same secret: exactly one wins and the
// version advances exactly once.
func TestMemoryRepository_ConcurrentRotateSingleWinner(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, &Session{ID: "id-1", RefreshSecret: "shared", TokenVersion: 2})

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.RotateSecret(ctx, "id-1", "shared", Rotation{
				NewSecret:  "winner-" + string(rune('a'+i)),
				NewVersion: 3,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrRefreshConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning rotation, got %d", wins)
	}
	got, _ := repo.GetByID(ctx, "id-1")
	if got.TokenVersion != 3 {
		t.Fatalf("version advanced %d times, want once (version=3): %+v", got.TokenVersion-2, got)
	}
}
