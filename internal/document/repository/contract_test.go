package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/stretchr/testify/require"
)

// runRepositoryContract exercises the behaviour every Repository must share.
func runRepositoryContract(t *testing.T, r Repository) {
	ctx := context.Background()

	t.Run("create then get", func(t *testing.T) {
		cases := []struct{ title, content, wantTitle string }{
			{"Notes", "", "Notes"},
			{"", "body", document.DefaultTitle},
			{"  ", "x\ny", document.DefaultTitle},
		}
		for _, tc := range cases {
			d, err := r.Create(ctx, tc.title, tc.content)
			require.NoError(t, err)
			require.NotEmpty(t, d.ID)
			require.Equal(t, d.CreatedAt, d.UpdatedAt)

			got, err := r.Get(ctx, d.ID)
			require.NoError(t, err)
			require.Equal(t, tc.wantTitle, got.Title)
			require.Equal(t, tc.content, got.Content)
			require.Equal(t, document.CurrentSchemaVersion, got.SchemaVersion)
		}
	})

	t.Run("update sequence keeps last content", func(t *testing.T) {
		d, err := r.Create(ctx, "seq", "")
		require.NoError(t, err)
		prev := d.UpdatedAt
		for i := 0; i < 5; i++ {
			u, err := r.UpdateContent(ctx, d.ID, fmt.Sprintf("v%d", i))
			require.NoError(t, err)
			require.False(t, u.UpdatedAt.Before(prev), "updatedAt must not decrease")
			require.False(t, u.UpdatedAt.Before(u.CreatedAt))
			require.Equal(t, "seq", u.Title, "title is untouched by content updates")
			prev = u.UpdatedAt
		}
		got, err := r.Get(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, "v4", got.Content)
	})

	t.Run("unknown ids", func(t *testing.T) {
		_, err := r.Get(ctx, "missing")
		require.ErrorIs(t, err, document.ErrNotFound)
		_, err = r.UpdateContent(ctx, "missing", "x")
		require.ErrorIs(t, err, document.ErrNotFound)
	})

	t.Run("list ordered by updatedAt desc", func(t *testing.T) {
		a, err := r.Create(ctx, "a", "")
		require.NoError(t, err)
		b, err := r.Create(ctx, "b", "")
		require.NoError(t, err)
		_, err = r.UpdateContent(ctx, a.ID, "touched")
		require.NoError(t, err)

		list, err := r.List(ctx)
		require.NoError(t, err)
		for i := 1; i < len(list); i++ {
			require.False(t, list[i].UpdatedAt.After(list[i-1].UpdatedAt), "list must be sorted newest first")
		}
		idx := map[string]int{}
		for i, d := range list {
			idx[d.ID] = i
		}
		require.Contains(t, idx, a.ID)
		require.Contains(t, idx, b.ID)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, r.Ping(ctx))
	})
}
