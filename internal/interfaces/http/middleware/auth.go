package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

const subjectKey = "subject"

// Claims are the JWT claims accepted by the API.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*Claims, error)
}

// JWTValidator checks HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret []byte
	issuer string
}

// NewJWTValidator returns a validator for secret. A non-empty issuer must
// match the iss claim.
func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), issuer: issuer}
}

func (v *JWTValidator) ValidateToken(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

// IssueToken mints an HS256 token for subject valid for ttl.
func IssueToken(secret, issuer, subject string, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, errors.New(errors.ErrCodeValidation, "jwt secret is not configured")
	}
	if subject == "" {
		return "", time.Time{}, errors.New(errors.ErrCodeValidation, "subject is required")
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to sign token")
	}
	return signed, expiresAt, nil
}

// AuthMiddleware enforces bearer authentication.
type AuthMiddleware struct {
	validator TokenValidator
	logger    logging.Logger
}

func NewAuthMiddleware(validator TokenValidator, logger logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, logger: logger}
}

// Handler rejects requests without a valid bearer token. The response never
// says why a token was refused.
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			m.reject(c, "authorization header required")
			return
		}
		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			m.logger.Debug("token rejected", logging.Err(err), logging.String("request_id", GetRequestID(c)))
			m.reject(c, "invalid or expired token")
			return
		}
		c.Set(subjectKey, claims.Subject)
		c.Next()
	}
}

func (m *AuthMiddleware) reject(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="ache"`)
	c.AbortWithStatusJSON(errors.HTTPStatusForCode(errors.ErrCodeUnauthorized), gin.H{
		"code":       string(errors.ErrCodeUnauthorized),
		"message":    msg,
		"request_id": GetRequestID(c),
	})
}

func extractBearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetSubject returns the authenticated subject, or "".
func GetSubject(c *gin.Context) string {
	return c.GetString(subjectKey)
}

//Personal.AI order the ending
