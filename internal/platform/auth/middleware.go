package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
	CtxActorKey  = "actor"
)

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}

// SignToken は HS256 で sub/role/email/username/exp を署名する
func SignToken(secret []byte, u User, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      strconv.FormatInt(u.ID, 10),
		"role":     string(u.Role),
		"email":    u.Email,
		"username": u.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}

// RequireAuth: Authorization: Bearer <token> を検証して context に Actor を詰める
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing Authorization header")
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid Authorization header")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "empty token")
			return
		}

		// alg 固定（none攻撃とか回避）
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || token == nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid claims")
			return
		}

		sub, _ := claims["sub"].(string)
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || id <= 0 {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid sub")
			return
		}

		roleStr, _ := claims["role"].(string)
		role, ok := ParseRole(roleStr)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid role")
			return
		}

		email, _ := claims["email"].(string)
		username, _ := claims["username"].(string)

		c.Set(CtxUserIDKey, id)
		c.Set(CtxRoleKey, role)
		c.Set(CtxActorKey, Actor{ID: id, Role: role, Email: email, Username: username})
		c.Next()
	}
}

// RequireCapability: RequireAuth の後ろに付ける
func RequireCapability(cp Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := ActorFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing identity")
			return
		}
		if !a.Can(cp) {
			abort(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
			return
		}
		c.Next()
	}
}
