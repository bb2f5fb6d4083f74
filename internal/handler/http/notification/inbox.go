package notification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"notify-dispatch/internal/common/pagination"
	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/handler/http/respond"
	"notify-dispatch/internal/repository"
	"notify-dispatch/internal/usecase/inbox"
)

// InboxLister lists a recipient's notifications.
type InboxLister interface {
	List(ctx context.Context, f repository.InboxFilter, params pagination.Params) (inbox.Page, error)
}

// RegisterInbox mounts GET /users/{userID}/notifications on mux.
func RegisterInbox(mux *http.ServeMux, svc InboxLister, cfg pagination.Config) {
	mux.Handle("GET /users/{userID}/notifications", InboxHandler{Svc: svc, Pagination: cfg})
}

// InboxHandler pages through a recipient's notifications, newest first.
// Query: page, limit, unread=true, type.
type InboxHandler struct {
	Svc        InboxLister
	Pagination pagination.Config
}

func (h InboxHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	params, err := pagination.ParseQueryParams(r, h.Pagination)
	defer func() { pagination.RecordRequest("inbox", status, params.Page) }()
	if err != nil {
		status = http.StatusBadRequest
		respond.Error(w, status, err)
		return
	}

	f := repository.InboxFilter{
		RecipientID: r.PathValue("userID"),
		Type:        entity.NotificationType(r.URL.Query().Get("type")),
	}
	if s := r.URL.Query().Get("unread"); s != "" {
		unread, err := strconv.ParseBool(s)
		if err != nil {
			status = http.StatusBadRequest
			respond.Error(w, status, fmt.Errorf("invalid query parameter: unread must be a boolean"))
			return
		}
		f.UnreadOnly = unread
	}

	page, err := h.Svc.List(r.Context(), f, params)
	if err != nil {
		status = respond.StatusFor(err)
		respond.DomainError(w, err)
		return
	}

	items := make([]DTO, 0, len(page.Items))
	for _, n := range page.Items {
		items = append(items, toDTO(n))
	}
	respond.JSON(w, status, pagination.NewResponse(items, pagination.NewMetadata(params, page.Total)))
}
