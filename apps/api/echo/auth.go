package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core/user"
)

const (
	contextTokenKey  = "userToken"
	audience         = "Academia"
	wsTokenQueryName = "token"
)

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are issued by the accounts service; this API only verifies them.
type Claims struct {
	jwt.StandardClaims
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

func (c Claims) Identity() user.Identity {
	return user.Identity{
		ID:       c.Subject,
		Username: c.Username,
		Email:    c.Email,
		Roles:    c.Roles,
	}
}

// NewClaims returns Claims for id, valid for ttl.
func NewClaims(id user.Identity, issuer string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   id.ID,
			Audience:  audience,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: id.Username,
		Email:    id.Email,
		Roles:    id.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)

	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// jwtConfig returns the JWT auth middleware config. lookup overrides the default "header:Authorization".
func jwtConfig(secretKey string, lookup ...string) middleware.JWTConfig {
	conf := middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
	if len(lookup) > 0 {
		conf.TokenLookup = lookup[0]
	}
	return conf
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getIdentity(ctx echo.Context) (user.Identity, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.Identity{}, err
	}
	if claims.Subject == "" {
		return user.Identity{}, errUnauthorized
	}
	return claims.Identity(), nil
}
