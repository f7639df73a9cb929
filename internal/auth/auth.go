package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrUnauthorized токен отсутствует или недействителен
var ErrUnauthorized = errors.New("unauthorized")

// Verifier проверяет и выпускает токены HS256. Владелец данных берется из
// claim sub.
type Verifier struct {
	secret   []byte
	issuer   string
	services []string
}

func NewVerifier(cfg *Config) (*Verifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	v := &Verifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer}
	for _, subject := range cfg.ServiceSubjects {
		if subject = strings.TrimSpace(subject); subject != "" {
			v.services = append(v.services, subject)
		}
	}
	return v, nil
}

var (
	mu        sync.RWMutex
	gVerifier *Verifier
)

// Init задает проверку токенов для VerifyToken
func Init(cfg *Config) error {
	v, err := NewVerifier(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	gVerifier = v
	mu.Unlock()
	return nil
}

func current() (*Verifier, error) {
	mu.RLock()
	defer mu.RUnlock()
	if gVerifier == nil {
		return nil, fmt.Errorf("%w: auth is not initialized", ErrUnauthorized)
	}
	return gVerifier, nil
}

// VerifyToken возвращает id пользователя из заголовка Authorization
func VerifyToken(r *http.Request) (string, error) {
	v, err := current()
	if err != nil {
		return "", err
	}
	return v.VerifyHeader(r.Header.Get("Authorization"))
}

// IssueToken выпускает токен для служебных клиентов и тестов
func IssueToken(userID string, ttl time.Duration) (string, error) {
	v, err := current()
	if err != nil {
		return "", err
	}
	return v.Issue(userID, ttl)
}

// IssueServiceToken выпускает токен первого служебного клиента из
// конфигурации, для административных команд
func IssueServiceToken(ttl time.Duration) (string, error) {
	v, err := current()
	if err != nil {
		return "", err
	}
	if len(v.services) == 0 {
		return "", fmt.Errorf("no service subjects configured, set JWT_SERVICE_SUBJECTS")
	}
	return v.Issue(v.services[0], ttl)
}

// IsService сообщает, принадлежит ли subject служебному клиенту
func (v *Verifier) IsService(subject string) bool {
	return subject != "" && slices.Contains(v.services, subject)
}

func (v *Verifier) VerifyHeader(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: no authorization header", ErrUnauthorized)
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: expected bearer token", ErrUnauthorized)
	}
	return v.Verify(strings.TrimSpace(token))
}

func (v *Verifier) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return "", fmt.Errorf("%w: unexpected issuer %q", ErrUnauthorized, claims.Issuer)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return claims.Subject, nil
}

func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
