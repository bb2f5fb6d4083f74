package pagination

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notify_pagination_requests_total",
		Help: "Paginated list requests by resource, status and page range",
	},
	[]string{"resource", "status", "page_range"},
)

// RecordRequest counts one paginated request.
func RecordRequest(resource string, statusCode, page int) {
	requestsTotal.WithLabelValues(resource, strconv.Itoa(statusCode), pageRange(page)).Inc()
}

func pageRange(page int) string {
	switch {
	case page <= 10:
		return "1-10"
	case page <= 50:
		return "11-50"
	case page <= 100:
		return "51-100"
	default:
		return "100+"
	}
}
