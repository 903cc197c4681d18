package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"EbbFM/config"

	"github.com/golang-jwt/jwt/v5"
)

// 上下文键
const (
	ctxKeyUserID   = "userID"
	ctxKeyUsername = "username"
	ctxKeyIsAdmin  = "isAdmin"
)

// AuthMiddleware 校验外部认证服务签发的Bearer令牌
// 本服务不管理会话，只验签并取出用户身份放入请求上下文。
func AuthMiddleware(cfg *config.Config, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		userID := int64(0)
		switch sub := claims["sub"].(type) {
		case string:
			userID, _ = strconv.ParseInt(sub, 10, 64)
		case float64:
			userID = int64(sub)
		}
		if userID == 0 {
			http.Error(w, "invalid token subject", http.StatusUnauthorized)
			return
		}

		username, _ := claims["name"].(string)
		isAdmin, _ := claims["admin"].(bool)

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyUsername, username)
		ctx = context.WithValue(ctx, ctxKeyIsAdmin, isAdmin)
		next(w, r.WithContext(ctx))
	}
}

// AdminMiddleware 管理操作需要admin声明
func AdminMiddleware(cfg *config.Config, next http.HandlerFunc) http.HandlerFunc {
	return AuthMiddleware(cfg, func(w http.ResponseWriter, r *http.Request) {
		if isAdmin, _ := r.Context().Value(ctxKeyIsAdmin).(bool); !isAdmin {
			http.Error(w, "admin required", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// bearerToken 从Authorization头或query取令牌
// WebSocket握手无法带自定义头，允许 ?token= 形式。
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
