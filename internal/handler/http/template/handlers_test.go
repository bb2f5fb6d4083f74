package template_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-dispatch/internal/domain/entity"
	tmplHTTP "notify-dispatch/internal/handler/http/template"
	tmplUC "notify-dispatch/internal/usecase/template"
)

type memRepo struct {
	data  map[string]*entity.NotificationTemplate
	inUse map[string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{data: map[string]*entity.NotificationTemplate{}, inUse: map[string]bool{}}
}

func (m *memRepo) Get(_ context.Context, id string) (*entity.NotificationTemplate, error) {
	t, ok := m.data[id]
	if !ok {
		return nil, entity.ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memRepo) GetBySlug(_ context.Context, slug string, ch entity.Channel) (*entity.NotificationTemplate, error) {
	for _, t := range m.data {
		if t.Slug == slug && t.Channel == ch && t.IsActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, entity.ErrTemplateNotFound
}

func (m *memRepo) ListActive(_ context.Context) ([]*entity.NotificationTemplate, error) {
	var out []*entity.NotificationTemplate
	for _, t := range m.data {
		if t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, t *entity.NotificationTemplate) error {
	cp := *t
	m.data[t.ID] = &cp
	return nil
}

func (m *memRepo) Update(_ context.Context, t *entity.NotificationTemplate) error {
	cp := *t
	m.data[t.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	delete(m.data, id)
	return nil
}

func (m *memRepo) InUse(_ context.Context, id string) (bool, error) { return m.inUse[id], nil }

func setup(t *testing.T) (*memRepo, http.Handler) {
	t.Helper()
	repo := newMemRepo()
	svc := &tmplUC.Service{Repo: repo, Now: func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }}
	mux := http.NewServeMux()
	tmplHTTP.Register(mux, svc)
	return repo, mux
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const welcome = `{
	"name": "Welcome",
	"slug": "welcome",
	"type": "info",
	"channel": "email",
	"subject": "Welcome {{name}}",
	"body": "Hello {{name}}, welcome to {{platform}}!",
	"defaults": {"name": "User", "platform": "our platform"}
}`

func TestTemplateLifecycle(t *testing.T) {
	repo, h := setup(t)

	rec := do(h, http.MethodPost, "/templates", welcome)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created tmplHTTP.DTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.IsActive)
	assert.Equal(t, "/templates/"+created.ID, rec.Header().Get("Location"))

	rec = do(h, http.MethodGet, "/templates/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodPost, "/templates/"+created.ID+"/preview", `{"variables":{"name":"Ada"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var preview tmplHTTP.PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, "Hello Ada, welcome to our platform!", preview.Body)
	require.NotNil(t, preview.Subject)
	assert.Equal(t, "Welcome Ada", *preview.Subject)

	rec = do(h, http.MethodPut, "/templates/"+created.ID, `{"body":"Hi {{name}}"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi {{name}}", repo.data[created.ID].Body)

	rec = do(h, http.MethodGet, "/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []tmplHTTP.DTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(h, http.MethodDelete, "/templates/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, repo.data)
}

func TestCreateTemplate_Errors(t *testing.T) {
	_, h := setup(t)
	require.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/templates", welcome).Code)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "duplicate slug", body: welcome, wantCode: http.StatusConflict},
		{
			name:     "malformed placeholder",
			body:     `{"name":"Bad","slug":"bad","type":"info","channel":"sms","body":"Hi {{name"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid slug",
			body:     `{"name":"Bad","slug":"Bad Slug","type":"info","channel":"sms","body":"x"}`,
			wantCode: http.StatusBadRequest,
		},
		{name: "bad json", body: `[]`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, do(h, http.MethodPost, "/templates", tt.body).Code)
		})
	}
}

func TestDeleteTemplate(t *testing.T) {
	repo, h := setup(t)
	repo.data["sys"] = &entity.NotificationTemplate{ID: "sys", Slug: "sys", IsSystem: true, IsActive: true}
	repo.data["used"] = &entity.NotificationTemplate{ID: "used", Slug: "used", IsActive: true}
	repo.inUse["used"] = true

	rec := do(h, http.MethodDelete, "/templates/sys", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodDelete, "/templates/used", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"deactivated"}`, rec.Body.String())
	assert.False(t, repo.data["used"].IsActive)

	rec = do(h, http.MethodDelete, "/templates/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreview_NoBody(t *testing.T) {
	_, h := setup(t)
	rec := do(h, http.MethodPost, "/templates", welcome)
	var created tmplHTTP.DTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(h, http.MethodPost, "/templates/"+created.ID+"/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hello User, welcome to our platform!")
}
