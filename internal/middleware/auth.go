package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"coreops/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by Auth.
const (
	ContextUserID      = "user_id"
	ContextWorkspaceID = "workspace_id"
	ContextUserName    = "user_name"
	ContextRole        = "role"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the session token body. A token without a workspace is not a
// session for this API.
type Claims struct {
	UserID      uint   `json:"user_id"`
	WorkspaceID uint   `json:"workspace_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if secret == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == 0 || claims.WorkspaceID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs claims for ttl. Used by tests and the dev token command.
func IssueToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TokenFromRequest reads the session cookie first, then a bearer header.
func TokenFromRequest(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && v != "" {
			return v
		}
	}
	ah := c.GetHeader("Authorization")
	if len(ah) > 7 && strings.EqualFold(ah[:7], "bearer ") {
		return strings.TrimSpace(ah[7:])
	}
	return ""
}

// SetIdentity stores claims in the gin context.
func SetIdentity(c *gin.Context, claims *Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextWorkspaceID, claims.WorkspaceID)
	c.Set(ContextUserName, claims.Name)
	c.Set(ContextRole, claims.Role)
}

// AuthMiddleware requires a valid session token on protected routes.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	var secret, cookie string
	if cfg != nil {
		secret = cfg.JWT.Secret
		cookie = cfg.JWT.CookieName
	}
	return func(c *gin.Context) {
		claims, err := ParseToken(TokenFromRequest(c, cookie), secret)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrMissingToken) {
				msg = "missing token"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": msg,
			})
			return
		}
		SetIdentity(c, claims)
		c.Next()
	}
}

// RequireRole lets only the listed roles through. Must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, r := range roles {
			if strings.EqualFold(r, role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "Forbidden",
			"message": "insufficient role",
		})
	}
}

// WorkspaceID returns the authenticated workspace, 0 when unauthenticated.
func WorkspaceID(c *gin.Context) uint {
	return c.GetUint(ContextWorkspaceID)
}

func UserID(c *gin.Context) uint {
	return c.GetUint(ContextUserID)
}
