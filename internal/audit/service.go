package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vialibre/vialibre/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Repository defines persistence for activity logs.
type Repository interface {
	Insert(ctx context.Context, log ActivityLog) error
	List(ctx context.Context, filters Filters, limit, offset int) ([]ActivityLog, error)
}

// Recorder is the write-side contract handed to feature handlers. Record
// never fails the caller: the audit sink is best-effort by design and a
// broken sink must not block the business operation that triggered it.
type Recorder interface {
	Record(ctx context.Context, actorID, action, description string)
}

// Service implements Recorder and the read-side listing.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Record persists an activity entry, pulling client IP and user agent from
// the request context. Failures are logged and swallowed.
func (s *Service) Record(ctx context.Context, actorID, action, description string) {
	if actorID == "" || action == "" {
		return
	}
	meta := shared.RequestMetaFromContext(ctx)
	entry := ActivityLog{
		ID:          uuid.NewString(),
		UserID:      actorID,
		Action:      action,
		Description: description,
		IPAddress:   meta.ClientIP,
		Device:      meta.UserAgent,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Warn("audit record dropped",
			slog.String("action", action),
			slog.String("actor", actorID),
			slog.Any("error", err))
	}
}

// List returns a page of activity logs, newest first. The limit+1 fetch
// detects whether a next page exists without a separate count query.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.List(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return Result{
		Rows:   rows,
		Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}
