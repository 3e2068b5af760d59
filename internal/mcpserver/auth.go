package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey string

const (
	callerKey  contextKey = "caller"
	authErrKey contextKey = "auth_error"
)

// httpContextFunc extracts the caller identity from a Bearer JWT. The
// token must be HS256-signed with the configured secret; the subject
// claim becomes the caller ID the quota guard charges. Missing or invalid
// tokens park an error in the context so tool handlers can reject the
// call with a proper result instead of a transport failure.
func httpContextFunc(secret []byte) server.HTTPContextFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return context.WithValue(ctx, authErrKey, fmt.Errorf("missing bearer token"))
		}

		subject, err := verifyToken(raw, secret)
		if err != nil {
			return context.WithValue(ctx, authErrKey, err)
		}
		return context.WithValue(ctx, callerKey, subject)
	}
}

func verifyToken(raw string, secret []byte) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}

// callerFromContext resolves the caller identity for quota attribution.
// HTTP callers carry a JWT subject; stdio callers are identified by their
// MCP session. The returned error is non-nil when authentication was
// required and failed.
func callerFromContext(ctx context.Context) (string, error) {
	if err, ok := ctx.Value(authErrKey).(error); ok {
		return "", err
	}
	if caller, ok := ctx.Value(callerKey).(string); ok && caller != "" {
		return caller, nil
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return "session:" + session.SessionID(), nil
	}
	return "anonymous", nil
}
