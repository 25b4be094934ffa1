package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryRepoContract(t *testing.T) {
	runRepositoryContract(t, NewMemoryRepo())
}

func TestMemoryRepoUpdatedAtNeverGoesBackwards(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	r := NewMemoryRepoWithClock(func() time.Time { return clock })
	ctx := context.Background()

	d, err := r.Create(ctx, "t", "")
	require.NoError(t, err)

	clock = base.Add(-time.Hour) // wall clock stepped back
	u, err := r.UpdateContent(ctx, d.ID, "after skew")
	require.NoError(t, err)
	require.Equal(t, base, u.UpdatedAt)
}

func TestMemoryRepoReturnsCopies(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d, err := r.Create(ctx, "t", "orig")
	require.NoError(t, err)
	d.Content = "mutated by caller"

	got, err := r.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "orig", got.Content)
}

func TestMemoryRepoListOrdering(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	r := NewMemoryRepoWithClock(func() time.Time { return clock })
	ctx := context.Background()

	first, _ := r.Create(ctx, "first", "")
	clock = clock.Add(time.Minute)
	second, _ := r.Create(ctx, "second", "")
	clock = clock.Add(time.Minute)
	_, err := r.UpdateContent(ctx, first.ID, "bump")
	require.NoError(t, err)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, first.ID, list[0].ID)
	require.Equal(t, second.ID, list[1].ID)
}

func TestMemoryRepoConcurrentUpdates(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d, err := r.Create(ctx, "race", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.UpdateContent(ctx, d.ID, "content")
		}(i)
	}
	wg.Wait()

	got, err := r.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "content", got.Content)
}

func TestMemoryRepoCanceledContext(t *testing.T) {
	r := NewMemoryRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Create(ctx, "t", "")
	require.ErrorIs(t, err, context.Canceled)
}
