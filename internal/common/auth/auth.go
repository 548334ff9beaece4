package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
)

const actorKey = "actor"

type Claims struct {
	TenantID string `json:"tenantId"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens issued by the login service.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier { return &Verifier{secret: []byte(secret)} }

func (v *Verifier) GenerateToken(actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: actor.TenantID,
		Role:     string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) ValidateToken(tokenString string) (domain.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Actor{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Actor{}, jwt.ErrSignatureInvalid
	}
	if claims.Subject == "" || claims.TenantID == "" || claims.Role == "" {
		return domain.Actor{}, errors.New("token is missing sub, tenantId or role")
	}
	return domain.Actor{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Role:     domain.Role(strings.ToLower(claims.Role)),
	}, nil
}

// Middleware puts the actor of a valid bearer token into the request locals.
// Websocket upgrades may pass the token as ?token= instead.
func (v *Verifier) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("token")
		if h := c.Get(fiber.HeaderAuthorization); h != "" {
			parts := strings.Split(h, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return unauthorized(c, "invalid authorization format")
			}
			raw = parts[1]
		}
		if raw == "" {
			return unauthorized(c, "missing authorization header")
		}
		actor, err := v.ValidateToken(raw)
		if err != nil {
			return unauthorized(c, "invalid or expired token")
		}
		c.Locals(actorKey, actor)
		return c.Next()
	}
}

// RequireRole rejects actors whose role is not listed.
func RequireRole(roles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		if ok {
			for _, r := range roles {
				if actor.Role == r {
					return c.Next()
				}
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"type":   apperr.Forbidden,
			"status": fiber.StatusForbidden,
			"detail": "role not allowed",
		})
	}
}

func ActorFrom(c *fiber.Ctx) (domain.Actor, bool) {
	a, ok := c.Locals(actorKey).(domain.Actor)
	return a, ok
}

func unauthorized(c *fiber.Ctx, detail string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"type":   apperr.Unauthorized,
		"status": fiber.StatusUnauthorized,
		"detail": detail,
	})
}
