package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meal-planner/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	common.InitNopLogger()
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	ok := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(UserIDKey)})
	}
	r.GET("/ping", ok)
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, body)
	})
	return r
}

func do(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireUser(t *testing.T) {
	r := newEngine(RequireUser())

	w := do(r, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), common.ErrCodeUnauthorized)

	w = do(r, http.MethodGet, "/ping", "", map[string]string{UserIDHeader: " u1 "})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u1"}`, w.Body.String())
}

func TestBodySizeLimit(t *testing.T) {
	r := newEngine(BodySizeLimit(16))

	w := do(r, http.MethodPost, "/echo", `{"a":"this body is too long"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(r, http.MethodPost, "/echo", `{"a":1}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator(time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	r := newEngine(d.Middleware())

	t.Run("same body within window is rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/echo", `{"a":1}`, nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/echo", `{"a":1}`, nil).Code)
	})

	t.Run("different user or body passes", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/echo", `{"a":1}`, map[string]string{UserIDHeader: "u2"}).Code)
		assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/echo", `{"a":2}`, nil).Code)
	})

	t.Run("body is still readable downstream", func(t *testing.T) {
		w := do(r, http.MethodPost, "/echo", `{"b":"x"}`, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"b":"x"}`, w.Body.String())
	})

	t.Run("window expiry", func(t *testing.T) {
		now = now.Add(2 * time.Second)
		assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/echo", `{"a":1}`, nil).Code)
	})

	t.Run("GET is never deduplicated", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ping", "", nil).Code)
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ping", "", nil).Code)
	})
}

func TestDeduplicatorExemptRoute(t *testing.T) {
	d := NewDeduplicator(time.Minute, "/lists/:id/decisions")
	r := gin.New()
	r.Use(d.Middleware())
	r.POST("/lists/:id/decisions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	r.POST("/lists", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	body := `{"decisions":[{"mergeId":"m1","decision":"merge"}]}`
	for i := 0; i < 3; i++ {
		w := do(r, http.MethodPost, "/lists/l1/decisions", body, map[string]string{UserIDHeader: "u1"})
		assert.Equal(t, http.StatusOK, w.Code, "retry %d", i)
	}

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/lists", body, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/lists", body, nil).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "clients are limited separately")

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))

	r := newEngine(NewRateLimiter(1, time.Minute).Middleware())
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ping", "", nil).Code)
	w := do(r, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := do(r, http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), common.ErrCodeInternalError)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(10 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	w := do(r, http.MethodGet, "/slow", "", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}
