package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-ops-api/pkg/middleware/requestid"
)

type observation struct {
	method string
	path   string
	status int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{method, path, status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(observer, "/metrics"))
	r.GET("/payments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/payments/pay-1", "/payments/pay-2", "/metrics", "/wp-login.php"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	require.Len(t, observer.seen, 3)
	assert.Equal(t, observation{http.MethodGet, "/payments/:id", http.StatusOK}, observer.seen[0])
	assert.Equal(t, "/payments/:id", observer.seen[1].path)
	assert.Equal(t, observation{http.MethodGet, unmatchedRoute, http.StatusNotFound}, observer.seen[2])
}

func TestMetricsNilObserver(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestResponseMetaCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())
	r.GET("/trend", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = Elapsed(c, time.Now())
		c.Status(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/trend", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", meta["request_id"])
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, "processing_time_ms")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestEnsureMetaWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))
	SetCacheHit(c, false)
	assert.Equal(t, false, ExtractMeta(c)[cacheHitKey])
}
