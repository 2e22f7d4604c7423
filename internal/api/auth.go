package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const ctxAccount = "account"

// Claims bind a session token to one signer account.
type Claims struct {
	Account      common.Address `json:"account"`
	AccountIndex int            `json:"account_index"`
	jwt.RegisteredClaims
}

// Issuer signs and validates session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for account.
func (i *Issuer) Issue(account common.Address, index int) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret not set")
	}
	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		Account:      account,
		AccountIndex: index,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.Hex(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	return signed, expires, err
}

// Validate parses a token signed by this issuer.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Middleware requires a bearer token and stores its account in the context.
func (i *Issuer) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, errorBody("Authorization header is required"))
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, errorBody("Invalid authorization header format"))
			}

			claims, err := i.Validate(tokenParts[1])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorBody("Invalid token"))
			}

			c.Set(ctxAccount, claims.Account)
			return next(c)
		}
	}
}

func accountOf(c echo.Context) common.Address {
	addr, _ := c.Get(ctxAccount).(common.Address)
	return addr
}
