// Package middleware 提供 HTTP 中间件.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yeisme/storyvault/pkg/configs"
	"github.com/yeisme/storyvault/pkg/internal/tenant"
)

// Claims Bearer Token 中的租户声明.
type Claims struct {
	OrganizationID string `json:"org"`
	UserID         string `json:"user"`
	Role           string `json:"role"`

	jwt.RegisteredClaims
}

// Principal 将声明转换为调用方身份.
func (c Claims) Principal() tenant.Principal {
	user := c.UserID
	if user == "" {
		user = c.Subject
	}

	return tenant.Principal{UserID: user, OrganizationID: c.OrganizationID, Role: tenant.ParseRole(c.Role)}
}

// AuthMiddleware 校验 HS256 Bearer Token，并把调用方写入 request context.
//   - 跳过路径直接放行，身份为匿名
//   - dev_allow_query 打开时允许 ?org=&user=&role= 兜底
func AuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	parser := jwt.NewParser(parserOptions(conf)...)

	return func(c *gin.Context) {
		if !conf.Enabled || isSkippedPath(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()
			return
		}

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			if p, ok := queryPrincipal(c, conf); ok {
				setPrincipal(c, p)
				c.Next()

				return
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})

			return
		}

		p, err := ParseToken(parser, conf.JWTSecret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		setPrincipal(c, p)
		c.Next()
	}
}

// ParseToken 校验签名并解析出调用方. 缺少 org 的 Token 视为无效.
func ParseToken(parser *jwt.Parser, secret, raw string) (tenant.Principal, error) {
	var claims Claims

	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		if secret == "" {
			return nil, errors.New("jwt secret not configured")
		}

		return []byte(secret), nil
	})
	if err != nil {
		return tenant.Principal{}, err
	}

	if strings.TrimSpace(claims.OrganizationID) == "" {
		return tenant.Principal{}, errors.New("token has no organization")
	}

	return claims.Principal(), nil
}

// SignToken 用 HS256 签发 Token，供命令行与测试使用.
func SignToken(secret string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parserOptions(conf configs.AuthConfig) []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if conf.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(conf.Issuer))
	}

	return opts
}

func bearerToken(h string) (string, bool) {
	const prefix = "bearer "

	h = strings.TrimSpace(h)
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(h[len(prefix):]), true
}

func queryPrincipal(c *gin.Context, conf configs.AuthConfig) (tenant.Principal, bool) {
	if !conf.DevAllowQuery || c.Query("org") == "" {
		return tenant.Principal{}, false
	}

	return tenant.Principal{
		UserID:         c.Query("user"),
		OrganizationID: c.Query("org"),
		Role:           tenant.ParseRole(c.Query("role")),
	}, true
}

func setPrincipal(c *gin.Context, p tenant.Principal) {
	c.Set("principal", p)
	c.Request = c.Request.WithContext(tenant.WithPrincipal(c.Request.Context(), p))
}

func isSkippedPath(path string, skips []string) bool {
	if path == "" || len(skips) == 0 {
		return false
	}

	for _, p := range skips {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}
