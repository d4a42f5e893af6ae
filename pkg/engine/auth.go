package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

const (
	TokenIssuer       = "geoalert"
	TokenTypeBearer   = "bearer"
	MinPasswordLength = 8
)

type Principal struct {
	UserID uint        `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

func (p *Principal) HasRole(roles ...models.Role) bool {
	return p != nil && slices.Contains(roles, p.Role)
}

// Require returns ErrForbidden unless the principal holds one of roles.
func (p *Principal) Require(roles ...models.Role) error {
	if p.HasRole(roles...) {
		return nil
	}
	role := models.Role("")
	if p != nil {
		role = p.Role
	}
	return fmt.Errorf("%w: role %q may not perform this action", ErrForbidden, role)
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) register(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	logger := common.GetCategoryLogger(common.LoggerNameEngine, common.LoggerCategoryAuth)

	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, validationError("email must contain @")
	}
	if len(password) < MinPasswordLength {
		return nil, validationError("password must be at least %d characters", MinPasswordLength)
	}
	role, err := models.ParseRole(string(role))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), e.Settings.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}

	err = e.Db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: email %s already registered", ErrConflict, email)
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		// a concurrent registration won the unique index after our count
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email %s already registered", ErrConflict, email)
		}
		return nil, fmt.Errorf("store user: %w", err)
	}

	logger.Info("User registered", zap.Uint("id", user.ID), zap.String("email", email), zap.String("role", string(role)))
	return &user, nil
}

func (e *Engine) signingKey() ([]byte, error) {
	if len(e.Settings.JWTSecret) == 0 {
		return nil, fmt.Errorf("%w: token signing secret not configured", ErrAuthUnavailable)
	}
	return e.Settings.JWTSecret, nil
}

func (e *Engine) login(ctx context.Context, email, password string) (*Token, error) {
	logger := common.GetCategoryLogger(common.LoggerNameEngine, common.LoggerCategoryAuth)

	key, err := e.signingKey()
	if err != nil {
		return nil, err
	}

	email = normalizeEmail(email)

	var user models.User
	err = e.Db.Conn.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Info("Login failed", zap.String("email", email), zap.String("reason", "unknown user"))
		return nil, fmt.Errorf("%w: invalid credentials", ErrAuth)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logger.Info("Login failed", zap.String("email", email), zap.String("reason", "bad password"))
		return nil, fmt.Errorf("%w: invalid credentials", ErrAuth)
	}

	now := time.Now()
	expiresAt := now.Add(e.Settings.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	logger.Info("Login succeeded", zap.Uint("id", user.ID), zap.String("role", string(user.Role)))
	return &Token{AccessToken: signed, TokenType: TokenTypeBearer, ExpiresAt: expiresAt.UTC()}, nil
}

func (e *Engine) authenticate(ctx context.Context, tokenString string) (*Principal, error) {
	key, err := e.signingKey()
	if err != nil {
		return nil, err
	}

	var c claims
	_, err = jwt.ParseWithClaims(tokenString, &c,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}

	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrAuth)
	}

	var user models.User
	err = e.Db.Conn.WithContext(ctx).First(&user, uint(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: unknown user", ErrAuth)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}

	return &Principal{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// ensureUser registers the user unless the email is already taken. The
// existing account is returned untouched in that case.
func (e *Engine) ensureUser(ctx context.Context, email, password string, role models.Role) (*models.User, bool, error) {
	var existing models.User
	err := e.Db.Conn.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("load user: %w", err)
	}

	user, err := e.register(ctx, email, password, role)
	if errors.Is(err, ErrConflict) {
		if err := e.Db.Conn.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&existing).Error; err != nil {
			return nil, false, fmt.Errorf("load user: %w", err)
		}
		return &existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Authorize authenticates token and checks it against roles. An empty
// roles list accepts any authenticated principal.
func Authorize(ctx context.Context, auth IAuth, token string, roles ...models.Role) (*Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrAuth)
	}
	principal, err := auth.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(roles) > 0 {
		if err := principal.Require(roles...); err != nil {
			return nil, err
		}
	}
	return principal, nil
}

type IAuthImpl struct {
	engine *Engine
}

func (ia *IAuthImpl) Register(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	return ia.engine.register(ctx, email, password, role)
}

func (ia *IAuthImpl) Login(ctx context.Context, email, password string) (*Token, error) {
	return ia.engine.login(ctx, email, password)
}

func (ia *IAuthImpl) Authenticate(ctx context.Context, token string) (*Principal, error) {
	return ia.engine.authenticate(ctx, token)
}

func (ia *IAuthImpl) EnsureUser(ctx context.Context, email, password string, role models.Role) (*models.User, bool, error) {
	return ia.engine.ensureUser(ctx, email, password, role)
}

func (e *Engine) GetIAuth() IAuth {
	return &IAuthImpl{engine: e}
}
