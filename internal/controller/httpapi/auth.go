package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/service"
	"github.com/golang-jwt/jwt/v5"
)

// Claims токен личности, выданный провайдером входа
type Claims struct {
	jwt.RegisteredClaims
	Role    model.Role `json:"role"`
	Name    string     `json:"name,omitempty"`
	Picture string     `json:"picture,omitempty"`
}

// Authenticator проверяет HS256-токены личности
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Issue выпускает токен для пользователя; используется в тестах и локально
func (a *Authenticator) Issue(user *model.User, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:    user.Role,
		Name:    user.DisplayName,
		Picture: user.PhotoURL,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify разбирает токен и возвращает личность вызывающего
func (a *Authenticator) Verify(token string) (*model.User, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrNotAuthenticated, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", service.ErrNotAuthenticated)
	}
	if claims.Role != model.RoleStudent && claims.Role != model.RoleInstructor {
		return nil, fmt.Errorf("%w: unknown role %q", service.ErrNotAuthenticated, claims.Role)
	}

	return &model.User{
		ID:          claims.Subject,
		Role:        claims.Role,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}

type ctxKey struct{}

func withUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// UserFromContext возвращает пользователя, прошедшего аутентификацию
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(*model.User)
	return user, ok && user != nil
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	// браузерный WebSocket не умеет ставить заголовки
	return r.URL.Query().Get("access_token")
}

// authenticate проверяет токен и кладёт профиль пользователя в контекст
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, r, service.ErrNotAuthenticated)
			return
		}

		identity, err := s.Auth.Verify(token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.Users.EnsureProfile(r.Context(), identity)
		if err != nil {
			if !errors.Is(err, service.ErrNotAuthenticated) {
				err = fmt.Errorf("load profile: %w", err)
			}
			s.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}
