package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coreops/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.JWT.Secret = testSecret
	return cfg
}

func newAuthRouter(cfg *config.Config, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	handlers := append(extra, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":      UserID(c),
			"workspace_id": WorkspaceID(c),
			"role":         c.GetString(ContextRole),
		})
	})
	r.GET("/test", handlers...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	valid, err := IssueToken(testSecret, Claims{UserID: 3, WorkspaceID: 9, Name: "Ann", Role: "owner"}, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, Claims{UserID: 3, WorkspaceID: 9, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}, 0)
	require.NoError(t, err)
	wrongKey, err := IssueToken("other", Claims{UserID: 3, WorkspaceID: 9}, time.Hour)
	require.NoError(t, err)
	noWorkspace, err := IssueToken(testSecret, Claims{UserID: 3}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		cookie   string
		wantCode int
	}{
		{"missing token", "", "", http.StatusUnauthorized},
		{"basic scheme", "Basic abc", "", http.StatusUnauthorized},
		{"malformed", "Bearer not.a.jwt", "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, "", http.StatusUnauthorized},
		{"no workspace", "Bearer " + noWorkspace, "", http.StatusUnauthorized},
		{"bearer ok", "Bearer " + valid, "", http.StatusOK},
		{"cookie ok", "", valid, http.StatusOK},
	}

	r := newAuthRouter(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: cfg.JWT.CookieName, Value: tt.cookie})
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.JSONEq(t, `{"user_id":3,"workspace_id":9,"role":"owner"}`, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	cfg := testConfig()
	r := newAuthRouter(cfg, RequireRole("owner"))

	owner, _ := IssueToken(testSecret, Claims{UserID: 1, WorkspaceID: 1, Role: "owner"}, time.Hour)
	staff, _ := IssueToken(testSecret, Claims{UserID: 2, WorkspaceID: 1, Role: "staff"}, time.Hour)

	for token, want := range map[string]int{owner: http.StatusOK, staff: http.StatusForbidden} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code)
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: 1, WorkspaceID: 1})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("", testSecret)
	assert.ErrorIs(t, err, ErrMissingToken)
}
