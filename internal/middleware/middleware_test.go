package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/service"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

type tokenValidatorStub struct {
	claims *models.JWTClaims
	token  string
}

func (s tokenValidatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != s.token {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	return router
}

func TestJWTMiddleware(t *testing.T) {
	validator := tokenValidatorStub{token: "good", claims: &models.JWTClaims{UserID: "user-1"}}
	router := newRouter(JWT(validator))
	router.GET("/me", func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.OwnerID())
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"bad token", "Bearer bad", http.StatusUnauthorized},
		{"valid", "bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "user-1", rec.Body.String())
			}
		})
	}
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	validator := tokenValidatorStub{token: "good", claims: &models.JWTClaims{UserID: "user-1"}}
	router := newRouter(OptionalJWT(validator))
	router.GET("/", func(c *gin.Context) {
		_, ok := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	for header, want := range map[string]bool{"": false, "Bearer bad": false, "Bearer good": true} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]bool
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, want, body["authenticated"], header)
	}
}

func TestRBACMiddleware(t *testing.T) {
	withClaims := func(claims *models.JWTClaims) gin.HandlerFunc {
		return func(c *gin.Context) {
			if claims != nil {
				c.Set(ContextUserKey, claims)
			}
			c.Next()
		}
	}
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	cases := []struct {
		name   string
		claims *models.JWTClaims
		path   string
		status int
	}{
		{"anonymous", nil, "/owners/user-1", http.StatusUnauthorized},
		{"admin", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, "/owners/user-1", http.StatusNoContent},
		{"self", &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}, "/owners/user-1", http.StatusNoContent},
		{"other student", &models.JWTClaims{UserID: "user-2", Role: models.RoleStudent}, "/owners/user-1", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(withClaims(tc.claims))
			router.GET("/owners/:ownerId", RBAC(string(models.RoleAdmin), "SELF"), ok)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	metrics := service.NewMetricsService()
	router := newRouter(Metrics(metrics))
	router.GET("/plans/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/plans/a", "/plans/b", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/plans/:id",status="200"} 2`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="unmatched",status="404"} 1`)
	assert.False(t, strings.Contains(body, `path="/plans/a"`))
	assert.Greater(t, testutil.CollectAndCount(metrics.Registry()), 0)
}

func TestAuditLogsSuccessfulRequestsOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	claims := &models.JWTClaims{UserID: "user-1"}
	router := newRouter(func(c *gin.Context) { c.Set(ContextUserKey, claims); c.Next() })
	router.DELETE("/plans/:id", Audit(zap.New(core), "delete", "study_plan"), func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusNoContent)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/plans/p-1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/plans/missing", nil))

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "delete", fields["action"])
	assert.Equal(t, "p-1", fields["resource_id"])
	assert.Equal(t, "user-1", fields["user_id"])
}

func TestResponseMeta(t *testing.T) {
	router := newRouter(WithResponseMeta())
	var captured map[string]interface{}
	router.GET("/", func(c *gin.Context) {
		SetMeta(c, "items", 3)
		captured = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, captured)
	assert.Equal(t, 3, captured["items"])
	_, timed := captured["processing_time_ms"]
	assert.True(t, timed)
	assert.Nil(t, ExtractMeta(nil))
}
