// Package template exposes the template catalogue over HTTP.
package template

import (
	"context"
	"net/http"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/handler/http/respond"
	tmplUC "notify-dispatch/internal/usecase/template"
)

// Service is the subset of the template usecase the handlers call.
type Service interface {
	Create(ctx context.Context, in tmplUC.CreateInput) (*entity.NotificationTemplate, error)
	Get(ctx context.Context, id string) (*entity.NotificationTemplate, error)
	List(ctx context.Context) ([]*entity.NotificationTemplate, error)
	Update(ctx context.Context, id string, u entity.TemplateUpdate) (*entity.NotificationTemplate, error)
	Remove(ctx context.Context, id string) (tmplUC.RemoveResult, error)
	Preview(ctx context.Context, id string, vars map[string]any) (tmplUC.Rendered, error)
}

// Register mounts the template routes on mux.
func Register(mux *http.ServeMux, svc Service) {
	mux.Handle("GET /templates", ListHandler{svc})
	mux.Handle("POST /templates", CreateHandler{svc})
	mux.Handle("GET /templates/{id}", GetHandler{svc})
	mux.Handle("PUT /templates/{id}", UpdateHandler{svc})
	mux.Handle("DELETE /templates/{id}", DeleteHandler{svc})
	mux.Handle("POST /templates/{id}/preview", PreviewHandler{svc})
}

type ListHandler struct{ Svc Service }

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	list, err := h.Svc.List(r.Context())
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	out := make([]DTO, 0, len(list))
	for _, t := range list {
		out = append(out, toDTO(t))
	}
	respond.JSON(w, http.StatusOK, out)
}

type CreateHandler struct{ Svc Service }

func (h CreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}
	t, err := h.Svc.Create(r.Context(), req.input())
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	w.Header().Set("Location", "/templates/"+t.ID)
	respond.JSON(w, http.StatusCreated, toDTO(t))
}

type GetHandler struct{ Svc Service }

func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(t))
}

type UpdateHandler struct{ Svc Service }

func (h UpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}
	t, err := h.Svc.Update(r.Context(), r.PathValue("id"), req.update())
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(t))
}

// DeleteHandler answers 204 when the template was deleted and 200 with
// {"result":"deactivated"} when notifications still reference it.
type DeleteHandler struct{ Svc Service }

func (h DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Remove(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	if res == tmplUC.Deactivated {
		respond.JSON(w, http.StatusOK, map[string]string{"result": string(res)})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PreviewHandler struct{ Svc Service }

func (h PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if r.ContentLength != 0 {
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, http.StatusBadRequest, err)
			return
		}
	}
	out, err := h.Svc.Preview(r.Context(), r.PathValue("id"), req.Variables)
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, PreviewResponse{Subject: out.Subject, Body: out.Body})
}
