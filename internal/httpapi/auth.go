package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"salesms/backend/internal/domain"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager authenticates the single operator account that may refresh the
// filter catalog and trigger imports.
type AuthManager struct {
	secret       []byte
	tokenTTL     time.Duration
	username     string
	passwordHash string
}

type adminClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// NewAuthManager accepts the admin password either in plain text or as a
// bcrypt hash. An empty password disables login. Without a secret, tokens are
// signed with a random per-process key and do not survive a restart.
func NewAuthManager(secret string, tokenTTL time.Duration, username string, password string) *AuthManager {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = "admin"
	}

	passwordHash := strings.TrimSpace(password)
	if passwordHash != "" && !isPasswordHash(passwordHash) {
		hashed, err := hashPassword(passwordHash)
		if err != nil {
			passwordHash = ""
		} else {
			passwordHash = hashed
		}
	}

	return &AuthManager{
		secret:       key,
		tokenTTL:     tokenTTL,
		username:     username,
		passwordHash: passwordHash,
	}
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// Verify even for an unknown user so both paths cost one bcrypt compare.
	passOK := verifyPassword(a.passwordHash, req.Password)
	if !userOK || !passOK {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(a.username, domain.RoleAdmin, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        domain.RoleAdmin,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &adminClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("salesms"))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := adminClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "salesms",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
