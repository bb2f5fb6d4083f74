// Package inbox lists a recipient's notifications page by page.
package inbox

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"notify-dispatch/internal/common/pagination"
	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

// Page is one page of a recipient's notifications.
type Page struct {
	Items []*entity.Notification
	Total int64
}

// Service reads recipient inboxes.
type Service struct {
	Repo repository.InboxRepository
}

// List returns the page of f selected by params. The page and the total are
// read concurrently.
func (s *Service) List(ctx context.Context, f repository.InboxFilter, params pagination.Params) (Page, error) {
	if f.RecipientID == "" {
		return Page{}, &entity.ValidationError{Field: "recipient_id", Message: "is required"}
	}
	if f.Type != "" && !f.Type.IsValid() {
		return Page{}, &entity.ValidationError{Field: "type", Message: fmt.Sprintf("unknown notification type %q", f.Type)}
	}

	var page Page
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.Repo.ListByRecipient(gctx, f, params.Offset(), params.Limit)
		page.Items = items
		return err
	})
	g.Go(func() error {
		total, err := s.Repo.CountByRecipient(gctx, f)
		page.Total = total
		return err
	})
	if err := g.Wait(); err != nil {
		return Page{}, fmt.Errorf("list inbox: %w", err)
	}
	return page, nil
}
