package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type Claims struct {
	jwt.RegisteredClaims
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(cfg JWTConfig, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}

// IssueToken mints a signed token for subject with the given role.
func IssueToken(cfg JWTConfig, subject string, role Role, name string, ttl time.Duration) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	if len(cfg.SigningKey) == 0 {
		return "", errors.New("signing key is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

func authenticate(c echo.Context, cfg JWTConfig) error {
	tokenStr, err := bearerToken(c)
	if err != nil {
		return err
	}
	claims, err := ParseToken(cfg, tokenStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	setPrincipal(c, Principal{UserID: claims.Subject, Role: claims.Role, Name: claims.Name})
	return nil
}

func setPrincipal(c echo.Context, p Principal) {
	c.Set("user_id", p.UserID)
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := authenticate(c, cfg); err != nil {
				return err
			}
			return next(c)
		}
	}
}

const (
	DevUserHeader = "X-Dev-User"
	DevRoleHeader = "X-Dev-Role"
)

// DevAuthMiddleware accepts any request in development. Bearer tokens are
// still verified; otherwise the caller is taken from the X-Dev-User and
// X-Dev-Role headers and defaults to an admin.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Header.Get("Authorization") != "" && len(cfg.SigningKey) > 0 {
				if err := authenticate(c, cfg); err != nil {
					return err
				}
				return next(c)
			}

			p := Principal{UserID: "dev-user", Role: RoleAdmin, Name: "Developer"}
			if uid := req.Header.Get(DevUserHeader); uid != "" {
				p.UserID = uid
			}
			if role := Role(req.Header.Get(DevRoleHeader)); role != "" {
				if !role.Valid() {
					return echo.NewHTTPError(http.StatusUnauthorized, "unknown role")
				}
				p.Role = role
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}
