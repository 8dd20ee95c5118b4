package middlewares

import (
	"context"
	"crm/source/utils"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type contextKey string

const UserContextKey = contextKey("laravel_user")

type LaravelUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

var authClient = &http.Client{Timeout: 10 * time.Second}

// LaravelAuth resolves the bearer token against the Laravel API and stores
// the authenticated user in the request context.
func LaravelAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			utils.SendResponse(w, http.StatusUnauthorized, "Token não informado", nil, 0)
			return
		}

		laravelURL := os.Getenv(utils.LARAVEL_API_URL)
		if laravelURL == "" {
			laravelURL = "http://localhost:8000"
		}
		userURL := fmt.Sprintf("%s/api/user", laravelURL)

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, userURL, nil)
		if err != nil {
			utils.SendResponse(w, http.StatusInternalServerError, "Erro ao criar requisição de autenticação", nil, 0)
			return
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Accept", "application/json")

		resp, err := authClient.Do(req)
		if err != nil {
			log.Printf("[Auth] Erro ao conectar na API de autenticação: %v", err)
			utils.SendResponse(w, http.StatusBadGateway, "Erro ao conectar na API de autenticação", nil, 0)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			utils.SendResponse(w, http.StatusUnauthorized, "Token inválido ou usuário não autenticado", nil, 0)
			return
		}

		user := LaravelUser{}
		err = json.NewDecoder(resp.Body).Decode(&user)
		if err != nil || user.ID == 0 || user.Name == "" || user.Email == "" {
			utils.SendResponse(w, http.StatusUnauthorized, "Usuário inválido retornado pela autenticação", nil, 0)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// StaticAuth authenticates every request as user. It is used by the
// in-memory server, which runs without the Laravel API.
func StaticAuth(user LaravelUser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user LaravelUser) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

func UserFromContext(ctx context.Context) (LaravelUser, bool) {
	user, ok := ctx.Value(UserContextKey).(LaravelUser)
	return user, ok
}
