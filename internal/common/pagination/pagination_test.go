package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryParams(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		query   string
		want    Params
		wantErr bool
	}{
		{query: "", want: Params{Page: 1, Limit: 20}},
		{query: "page=3&limit=50", want: Params{Page: 3, Limit: 50}},
		{query: "page=0", wantErr: true},
		{query: "page=abc", wantErr: true},
		{query: "limit=101", wantErr: true},
		{query: "limit=0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/x?"+tt.query, nil)
			got, err := ParseQueryParams(r, cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculate(t *testing.T) {
	assert.Equal(t, 0, CalculateOffset(1, 20))
	assert.Equal(t, 40, Params{Page: 3, Limit: 20}.Offset())

	assert.Equal(t, 1, CalculateTotalPages(0, 20))
	assert.Equal(t, 1, CalculateTotalPages(20, 20))
	assert.Equal(t, 2, CalculateTotalPages(21, 20))
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse[string](nil, NewMetadata(Params{Page: 2, Limit: 10}, 25))
	assert.NotNil(t, resp.Data)
	assert.Equal(t, Metadata{Total: 25, Page: 2, Limit: 10, TotalPages: 3}, resp.Pagination)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PAGINATION_DEFAULT_LIMIT", "500")
	t.Setenv("PAGINATION_MAX_LIMIT", "50")
	assert.Equal(t, Config{DefaultLimit: 20, MaxLimit: 50}, LoadFromEnv())

	t.Setenv("PAGINATION_MAX_LIMIT", "-1")
	assert.Equal(t, DefaultConfig(), LoadFromEnv())
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(requestsTotal.WithLabelValues("inbox", "200", "51-100"))
	RecordRequest("inbox", 200, 75)
	assert.Equal(t, before+1, testutil.ToFloat64(requestsTotal.WithLabelValues("inbox", "200", "51-100")))
}
