// Package auth issues and verifies access tokens and password hashes. The
// business core never interprets roles; only the request layer does, through
// the middleware here.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"clubpoint-backend/internal/apperr"
	"clubpoint-backend/internal/model"
)

// Service signs and parses HS256 access tokens.
type Service struct {
	db       *gorm.DB
	secret   []byte
	tokenTTL time.Duration
}

// NewService creates the auth service.
func NewService(db *gorm.DB, secret string, tokenTTL time.Duration) *Service {
	return &Service{db: db, secret: []byte(secret), tokenTTL: tokenTTL}
}

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt failed: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether plain matches the stored hash.
func CheckPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Register creates a user account with the default role.
func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := model.User{Email: email, PasswordHash: hash, Role: model.RoleUser}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Newf(apperr.KindConflict, "email %s is already registered", email)
		}
		return nil, err
	}
	return &u, nil
}

// Login verifies credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, apperr.New(apperr.KindNotFound, "invalid credentials")
		}
		return "", nil, err
	}
	if !CheckPassword(password, u.PasswordHash) {
		return "", nil, apperr.New(apperr.KindNotFound, "invalid credentials")
	}

	token, err := s.IssueToken(&u)
	if err != nil {
		return "", nil, err
	}
	return token, &u, nil
}

// IssueToken signs an access token for the user.
func (s *Service) IssueToken(u *model.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  u.Email,
		"role": string(u.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// UserFromToken parses the token and loads the subject user.
func (s *Service) UserFromToken(ctx context.Context, tokenStr string) (*model.User, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.New(apperr.KindNotFound, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, apperr.New(apperr.KindNotFound, "token has no subject")
	}

	var u model.User
	if err := s.db.WithContext(ctx).Where("email = ?", sub).First(&u).Error; err != nil {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return &u, nil
}
