package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/repository"
)

func NewInboxRepo(db DBTX) repository.InboxRepository {
	return &NotificationRepo{db: db}
}

// inboxWhere builds the WHERE clause for f. Cancelled and expired
// notifications never show in an inbox.
func inboxWhere(f repository.InboxFilter) (string, []any) {
	conds := []string{"recipient_id = $1", "status NOT IN ('cancelled', 'expired')"}
	args := []any{f.RecipientID}
	if f.UnreadOnly {
		conds = append(conds, "read_at IS NULL")
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, "type = $"+strconv.Itoa(len(args)))
	}
	return "\nWHERE " + strings.Join(conds, "\n  AND "), args
}

func (repo *NotificationRepo) ListByRecipient(ctx context.Context, f repository.InboxFilter, offset, limit int) ([]*entity.Notification, error) {
	where, args := inboxWhere(f)
	n := len(args)
	query := `SELECT` + notificationColumns + `
FROM notifications` + where + `
ORDER BY created_at DESC, id DESC
LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	return repo.list(ctx, "ListByRecipient", query, append(args, limit, offset)...)
}

func (repo *NotificationRepo) CountByRecipient(ctx context.Context, f repository.InboxFilter) (int64, error) {
	where, args := inboxWhere(f)
	var total int64
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("CountByRecipient: %w", err)
	}
	return total, nil
}
