package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// RoleAdmin — роль администратора витрины.
const RoleAdmin = "admin"

const defaultTokenTTL = 12 * time.Hour

var (
	// ErrUnauthorized — токен отсутствует, просрочен или подпись неверна.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden — у токена нет нужной роли.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials — неверный пароль администратора.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAdminDisabled — вход администратора не настроен.
	ErrAdminDisabled = errors.New("admin login is not configured")
)

// Claims — содержимое токена администратора.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator выдаёт и проверяет JWT (HS256) для админских маршрутов.
type Authenticator struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAuthenticator создаёт аутентификатор. Пустой хеш пароля или секрет
// отключают вход: Login вернёт ErrAdminDisabled, админские маршруты — 401.
func NewAuthenticator(passwordHash, secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		passwordHash: []byte(strings.TrimSpace(passwordHash)),
		secret:       []byte(secret),
		ttl:          ttl,
		now:          time.Now,
	}
}

// HashPassword возвращает bcrypt-хеш пароля для конфигурации.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Enabled сообщает, настроен ли вход администратора.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.passwordHash) > 0 && len(a.secret) > 0
}

// Login проверяет пароль и выдаёт токен с ролью admin.
func (a *Authenticator) Login(password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   RoleAdmin,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse проверяет подпись и срок действия токена.
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	if !a.Enabled() {
		return nil, ErrUnauthorized
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

type claimsKey struct{}

// ClaimsFromContext возвращает claims, положенные RequireRole.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}

// RequireRole пропускает запрос только с валидным Bearer-токеном нужной роли.
func (a *Authenticator) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
				return
			}
			claims, err := a.Parse(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if claims.Role != role {
				writeError(w, http.StatusForbidden, ErrForbidden.Error())
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
