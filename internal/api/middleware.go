package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/banking/kyc-risk-service/internal/pkg/logger"
)

const subjectContextKey = "subject"

// RequestContext copies the request id and active trace ids into the request
// context so that logger.WithContext can pick them up.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()

			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = req.Header.Get(echo.HeaderXRequestID)
			}
			if id != "" {
				ctx = context.WithValue(ctx, logger.RequestIDKey, id)
			}
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				ctx = context.WithValue(ctx, logger.TraceIDKey, sc.TraceID().String())
				ctx = context.WithValue(ctx, logger.SpanIDKey, sc.SpanID().String())
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// JWTAuth accepts HS256 bearer tokens signed with secret. The token subject is
// stored on the echo context and in the request context.
func JWTAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenUnverifiable
				}
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				if errors.Is(err, jwt.ErrTokenExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "token has expired")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(subjectContextKey, claims.Subject)
			req := c.Request()
			c.SetRequest(req.WithContext(context.WithValue(req.Context(), logger.SubjectKey, claims.Subject)))
			return next(c)
		}
	}
}
