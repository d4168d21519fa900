package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"donations/internal/domain"
)

const identityContextKey = "identity"

// Claims are the donor token claims.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// Auth verifies an HS256 bearer token and stores the caller identity in the
// context. Requests without a valid token continue unauthenticated; the
// operations that need an identity reject them.
func Auth(secret []byte, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}

		identity, err := parseIdentity(parser, token, secret)
		if err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the verified caller, or nil if the request is not
// authenticated.
func IdentityFrom(c *gin.Context) *domain.Identity {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*domain.Identity)
	return identity
}

func parseIdentity(parser *jwt.Parser, token string, secret []byte) (*domain.Identity, error) {
	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &domain.Identity{
		ID:      claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
