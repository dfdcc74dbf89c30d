package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func authEngine(keys []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(keys))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("api_key")) })
	return r
}

func TestAuthAcceptsAllKeyStyles(t *testing.T) {
	r := authEngine([]string{"k1", "k2"})

	for _, set := range []func(*http.Request){
		func(req *http.Request) { req.Header.Set("X-API-Key", "k1") },
		func(req *http.Request) { req.Header.Set("Authorization", "Bearer k2") },
		func(req *http.Request) { req.URL.RawQuery = "api_key=k1" },
	} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		set(req)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Body.String())
	}
}

func TestAuthRejects(t *testing.T) {
	r := authEngine([]string{"k1"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing API key")

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-API-Key", "k1x")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid API key")
}

func TestAuthDisabledWithoutKeys(t *testing.T) {
	r := authEngine([]string{""})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
