package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// AccessLog logs one line per request and stamps the client address into the
// request context for audit entries.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(services.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

// Authenticate accepts an HS256 bearer token whose sub claim is the user id and
// whose role claim is customer (default) or admin.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token", Code: "UNAUTHORIZED"})
			return
		}
		actor, err := parseToken(strings.TrimSpace(raw), secret)
		if err != nil {
			slog.DebugContext(c.Request.Context(), "rejected token", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Code: "UNAUTHORIZED"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "admin role required", Code: "FORBIDDEN"})
			return
		}
		c.Next()
	}
}

func parseToken(raw string, secret []byte) (domain.Actor, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Actor{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Actor{}, errors.New("unexpected claims type")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("token has no subject")
	}
	role, _ := claims["role"].(string)
	switch role {
	case "":
		role = domain.RoleCustomer
	case domain.RoleCustomer, domain.RoleAdmin:
	default:
		return domain.Actor{}, errors.New("unknown role " + role)
	}
	return domain.Actor{ID: sub, Role: role}, nil
}

// IssueToken signs a token the Authenticate middleware accepts.
func IssueToken(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func actorFrom(c *gin.Context) domain.Actor {
	v, _ := c.Get(actorKey)
	a, _ := v.(domain.Actor)
	return a
}
