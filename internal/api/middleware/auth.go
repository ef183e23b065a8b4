package middleware

import (
	"net/http"

	"balancer/pkg/crypto"
	"balancer/pkg/utils"
)

// BasicAuth - middleware для защиты управляющих endpoints
//
// Назначение:
// Защищает POST /api/v1/loop/trigger от неавторизованного доступа.
// Использует HTTP Basic Authentication, пароль сверяется с bcrypt-хешем.
//
// Конфигурация:
// - ADMIN_USERNAME: имя пользователя
// - ADMIN_PASSWORD_HASH: bcrypt-хеш пароля
// - Если хеш не задан, управляющие endpoints закрыты (403)
//
// Использование:
//
//	loop := api.PathPrefix("/loop").Subrouter()
//	loop.Use(middleware.BasicAuth(user, hash))
func BasicAuth(username, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username == "" || passwordHash == "" {
				http.Error(w, "Admin endpoints disabled. Set ADMIN_USERNAME and ADMIN_PASSWORD_HASH.", http.StatusForbidden)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || !crypto.CheckCredentials(user, pass, username, passwordHash) {
				if ok {
					utils.L().Warn("admin auth failed",
						utils.String("user", user),
						utils.String("remote_addr", r.RemoteAddr),
					)
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="balancer"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
