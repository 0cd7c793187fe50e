package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleUser   = "user"
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies a session. SubjectID is the user id for RoleUser and the vendor id for
// RoleVendor; the admin session carries zero.
type Claims struct {
	SubjectID int64  `json:"sid"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 session tokens for a single issuer.
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewManager(secret, issuer string) *Manager {
	return &Manager{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (m *Manager) IssueToken(subjectID int64, name, role string, ttl time.Duration) (string, error) {
	issuedAt := m.now()
	claims := Claims{
		SubjectID: subjectID,
		Name:      name,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   role + ":" + strconv.FormatInt(subjectID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and lifetime. Every failure wraps ErrInvalidToken.
func (m *Manager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
