package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vialibre/vialibre/internal/shared"
	_ "github.com/vialibre/vialibre/testing"
)

type mockRepository struct {
	entries   []ActivityLog
	insertErr error

	lastLimit  int
	lastOffset int
}

func (m *mockRepository) Insert(ctx context.Context, log ActivityLog) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.entries = append(m.entries, log)
	return nil
}

func (m *mockRepository) List(ctx context.Context, filters Filters, limit, offset int) ([]ActivityLog, error) {
	m.lastLimit = limit
	m.lastOffset = offset
	var filtered []ActivityLog
	for _, e := range m.entries {
		if filters.UserID != "" && e.UserID != filters.UserID {
			continue
		}
		if filters.Action != "" && e.Action != filters.Action {
			continue
		}
		filtered = append(filtered, e)
	}
	if offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[offset:]
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func TestRecordCapturesRequestMeta(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, nil)

	ctx := shared.ContextWithRequestMeta(context.Background(), shared.RequestMeta{
		ClientIP:  "10.1.2.3",
		UserAgent: "Mozilla/5.0",
	})
	svc.Record(ctx, "u1", "login", "inicio de sesión")

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	assert.Equal(t, "u1", entry.UserID)
	assert.Equal(t, "login", entry.Action)
	assert.Equal(t, "10.1.2.3", entry.IPAddress)
	assert.Equal(t, "Mozilla/5.0", entry.Device)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestRecordSkipsAnonymous(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, nil)

	svc.Record(context.Background(), "", "login", "sin actor")
	svc.Record(context.Background(), "u1", "", "sin acción")

	assert.Empty(t, repo.entries)
}

func TestRecordSwallowsRepositoryFailure(t *testing.T) {
	repo := &mockRepository{insertErr: errors.New("sink down")}
	svc := NewService(repo, nil)

	// Must not panic and must not surface the error to the caller.
	svc.Record(context.Background(), "u1", "login", "inicio de sesión")
	assert.Empty(t, repo.entries)
}

func seedEntries(repo *mockRepository, n int) {
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		repo.entries = append(repo.entries, ActivityLog{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			Action:    "login",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestListPaginates(t *testing.T) {
	repo := &mockRepository{}
	seedEntries(repo, 25)
	svc := NewService(repo, nil)

	res, err := svc.List(context.Background(), Filters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 20)
	assert.True(t, res.Paging.HasNext)
	assert.Equal(t, 1, res.Paging.Page)

	res, err = svc.List(context.Background(), Filters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 5)
	assert.False(t, res.Paging.HasNext)
}

func TestListDefaultsPageSize(t *testing.T) {
	repo := &mockRepository{}
	seedEntries(repo, 5)
	svc := NewService(repo, nil)

	res, err := svc.List(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Paging.Page)
	assert.Equal(t, defaultPageSize, res.Paging.PageSize)
	// One extra row is requested to detect the next page.
	assert.Equal(t, defaultPageSize+1, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)
}

func TestListCapsPageSize(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, nil)

	res, err := svc.List(context.Background(), Filters{PageSize: 10_000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, res.Paging.PageSize)
	assert.Equal(t, maxPageSize+1, repo.lastLimit)
}

func TestListFiltersByAction(t *testing.T) {
	repo := &mockRepository{}
	seedEntries(repo, 3)
	repo.entries = append(repo.entries, ActivityLog{ID: "x", UserID: "u2", Action: "logout"})
	svc := NewService(repo, nil)

	res, err := svc.List(context.Background(), Filters{Action: "logout"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "u2", res.Rows[0].UserID)
}

var _ Repository = (*mockRepository)(nil)
