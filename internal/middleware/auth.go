package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Identity 是鉴权后得到的调用者身份，UserID 在整个系统里唯一。
type Identity struct {
	UserID string
	Email  string
	Name   string
}

type identityKey struct{}

// WithIdentity 把身份写入 context。
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext 取出经过鉴权的调用者身份。
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// UserIDFromContext 没有身份时返回空串。
func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

// APIKeyAuth 创建 API Key 鉴权中间件，key 本身即用户 id。
// 期望请求头格式：Authorization: ApiKey <token>
func APIKeyAuth(validKeys []string) func(http.Handler) http.Handler {
	keySet := make(map[string]struct{}, len(validKeys))
	for _, key := range validKeys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			keySet[trimmed] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, ok := credential(r, "ApiKey ")
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "invalid Authorization header, expected: ApiKey <token>")
				return
			}
			if _, valid := keySet[apiKey]; !valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: apiKey})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeaderIdentity 仅用于本地开发：直接信任 X-User-ID 请求头。
func HeaderIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
			if userID == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing X-User-ID header")
				return
			}
			ctx := WithIdentity(r.Context(), Identity{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// credential 取出 Authorization 头中指定前缀后的凭证。
func credential(r *http.Request, prefix string) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	value := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return value, value != ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="filedrive"`)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
