package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"filedrive/internal/logging"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"
)

var errNoVerifier = errors.New("no suitable verification method")

// JWTConfig 描述身份服务。三种校验方式可以组合，至少配置一种。
type JWTConfig struct {
	Secret      string // HS256 共享密钥
	JWKSURL     string // RS256/ES256 公钥集
	UserInfoURL string // 本地校验失败后的远程校验地址
	APIKey      string // 访问身份服务时附带的 apikey 头
}

// JWTVerifier 把 bearer token 转换成 Identity。
type JWTVerifier struct {
	secret      []byte
	jwks        *keyfunc.JWKS
	userInfoURL string
	client      *retryablehttp.Client
	log         logging.Logger
}

type headerTransport struct {
	T   http.RoundTripper
	Key string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Key != "" {
		req.Header.Set("apikey", t.Key)
	}
	return t.T.RoundTrip(req)
}

// NewJWTVerifier 初始化校验器。JWKS 拉取失败不是致命错误，之后回退到远程校验。
func NewJWTVerifier(ctx context.Context, cfg JWTConfig, log logging.Logger) *JWTVerifier {
	if log == nil {
		log = logging.Nop()
	}
	log = log.With("component", "auth")

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMax = 2 * time.Second
	client.Logger = retryLogger{log: log}
	client.HTTPClient.Timeout = 10 * time.Second
	client.HTTPClient.Transport = &headerTransport{T: client.HTTPClient.Transport, Key: cfg.APIKey}

	v := &JWTVerifier{
		userInfoURL: strings.TrimRight(cfg.UserInfoURL, "/"),
		client:      client,
		log:         log,
	}
	if cfg.Secret != "" {
		v.secret = []byte(cfg.Secret)
	}

	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			Ctx:               ctx,
			Client:            client.StandardClient(),
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.Error(ctx, "jwks refresh failed", "error", err)
			},
		})
		if err != nil {
			log.Warn(ctx, "jwks init failed, falling back to remote validation", "url", cfg.JWKSURL, "error", err)
		} else {
			v.jwks = jwks
			log.Info(ctx, "jwks initialized", "url", cfg.JWKSURL)
		}
	}
	return v
}

// Close 停止 JWKS 的后台刷新。
func (v *JWTVerifier) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Verify 先尝试本地校验（HS256 密钥或 JWKS），失败再调用身份服务。
func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	id, localErr := v.verifyLocally(token)
	if localErr == nil {
		return id, nil
	}
	if v.userInfoURL == "" {
		return Identity{}, localErr
	}

	v.log.Debug(ctx, "local token validation failed, trying remote", "error", localErr)
	id, err := v.verifyRemotely(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("remote validation: %w", err)
	}
	return id, nil
}

func (v *JWTVerifier) verifyLocally(tokenString string) (Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			if v.secret != nil {
				return v.secret, nil
			}
			return nil, errNoVerifier
		}
		if v.jwks != nil {
			return v.jwks.Keyfunc(token)
		}
		return nil, errNoVerifier
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, errors.New("token invalid")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, errors.New("token has no subject")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return Identity{UserID: sub, Email: email, Name: name}, nil
}

func (v *JWTVerifier) verifyRemotely(ctx context.Context, token string) (Identity, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var user struct {
		ID    string `json:"id"`
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return Identity{}, fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" {
		user.ID = user.Sub
	}
	if user.ID == "" {
		return Identity{}, errors.New("user has no id")
	}
	return Identity{UserID: user.ID, Email: user.Email, Name: user.Name}, nil
}

// JWTAuth 创建 Bearer token 鉴权中间件。
func JWTAuth(v *JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := credential(r, "Bearer ")
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "invalid Authorization header, expected: Bearer <token>")
				return
			}

			id, err := v.Verify(r.Context(), token)
			if err != nil {
				v.log.Info(r.Context(), "token rejected", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// retryLogger 把 retryablehttp 的日志接到项目日志上。
type retryLogger struct{ log logging.Logger }

func (l retryLogger) Error(msg string, kv ...any) { l.log.Error(context.Background(), msg, kv...) }
func (l retryLogger) Info(msg string, kv ...any)  { l.log.Debug(context.Background(), msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...any) { l.log.Debug(context.Background(), msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...any)  { l.log.Warn(context.Background(), msg, kv...) }
