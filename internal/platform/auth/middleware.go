package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims is the JWT payload issued at login. Subject carries the numeric
// user ID and Role distinguishes lawyers from clients.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTConfig struct {
	SigningKey []byte
	Issuer     string
}

// JWTMiddleware validates the bearer token and attaches the resulting
// Principal to the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := bearerToken(c)
			if tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			p, err := ParseToken(tokenStr, cfg)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

// ParseToken validates an HMAC-signed token string and extracts the Principal.
// Exported so the websocket endpoint can authenticate its upgrade request,
// where the token arrives as a query parameter instead of a header.
func ParseToken(tokenStr string, cfg JWTConfig) (Principal, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, jwt.ErrTokenUnverifiable
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Principal{}, jwt.ErrTokenInvalidSubject
	}

	role := Role(claims.Role)
	if role != RoleLawyer && role != RoleClient {
		return Principal{}, jwt.ErrTokenInvalidClaims
	}

	return Principal{Role: role, ID: id}, nil
}

// IssueToken signs a token for the given principal. Used by tests and dev
// tooling; the upstream identity service issues production tokens.
func IssueToken(p Principal, cfg JWTConfig, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.ID, 10),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(p.Role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.SigningKey)
}

func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	// WebSocket clients cannot set headers from the browser.
	return c.QueryParam("token")
}
