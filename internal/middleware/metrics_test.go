package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	status int
}

type observerStub struct {
	calls []recordedRequest
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.calls = append(o.calls, recordedRequest{method: method, path: path, status: status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	router := gin.New()
	router.Use(Metrics(observer, "/metrics"))
	router.GET("/timetable/batches/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/timetable/batches/b-1", "/timetable/batches/b-2", "/metrics", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, observer.calls, 3)
	assert.Equal(t, recordedRequest{http.MethodGet, "/timetable/batches/:id", http.StatusOK}, observer.calls[0])
	assert.Equal(t, "/timetable/batches/:id", observer.calls[1].path)
	assert.Equal(t, recordedRequest{http.MethodGet, unmatchedRoute, http.StatusNotFound}, observer.calls[2])
}

func TestMetricsNilObserver(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(nil))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
