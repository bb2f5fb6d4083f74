package notification

import (
	"errors"
	"net/http"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/handler/http/respond"
	"notify-dispatch/internal/usecase/notify"
)

// SendHandler accepts a notification and dispatches it when it is due.
// A scheduled notification is answered with 202.
type SendHandler struct{ Svc notify.Service }

func (h SendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.Svc.Send(r.Context(), req.input())
	if err != nil {
		respond.DomainError(w, err)
		return
	}

	code := http.StatusCreated
	if res.Scheduled {
		code = http.StatusAccepted
	}
	w.Header().Set("Location", "/notifications/"+res.NotificationID)
	respond.JSON(w, code, toResultDTO(res))
}

// GetHandler returns one notification.
type GetHandler struct{ Svc notify.Service }

func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(n))
}

// DispatchHandler dispatches a stored notification now.
type DispatchHandler struct{ Svc notify.Service }

func (h DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Dispatch(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toResultDTO(res))
}

// RetryHandler spends one unit of a failed notification's retry budget.
type RetryHandler struct{ Svc notify.Service }

func (h RetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toResultDTO(res))
}

// CancelHandler cancels a notification that has not reached a final state.
type CancelHandler struct{ Svc notify.Service }

func (h CancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(n))
}

// ReadHandler marks a delivered notification as read.
type ReadHandler struct{ Svc notify.Service }

func (h ReadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.MarkRead(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(n))
}

// DeliveryCallbackHandler applies a provider delivery receipt.
type DeliveryCallbackHandler struct{ Svc notify.Service }

func (h DeliveryCallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req DeliveryCallback
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}
	if req.ProviderMessageID == "" {
		respond.Error(w, http.StatusBadRequest, errors.New("provider_message_id is required"))
		return
	}
	if err := h.Svc.ConfirmDelivery(r.Context(), req.ProviderMessageID); err != nil {
		respond.DomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EngagementCallbackHandler records opened, clicked and bounced events.
type EngagementCallbackHandler struct{ Svc notify.Service }

func (h EngagementCallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req EngagementCallback
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}
	if req.ProviderMessageID == "" || req.Event == "" {
		respond.Error(w, http.StatusBadRequest, errors.New("provider_message_id and event are required"))
		return
	}
	err := h.Svc.RecordEngagement(r.Context(), notify.Engagement{
		ProviderMessageID: req.ProviderMessageID,
		Type:              entity.EventType(req.Event),
		Metadata:          req.Metadata,
	})
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
