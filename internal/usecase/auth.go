package usecase

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/breadworks/bakeops/internal/domain"
)

// AuthService authenticates actors and issues bearer tokens.
type AuthService struct {
	Store            domain.Store
	JWTSecret        []byte
	TokenTTL         time.Duration
	AdminRecoveryKey string
	Now              func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(store domain.Store, secret []byte, ttl time.Duration, recoveryKey string) AuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return AuthService{
		Store: store, JWTSecret: secret, TokenTTL: ttl, AdminRecoveryKey: recoveryKey,
		Now: func() time.Time { return time.Now().UTC() },
	}
}

// Claims is the JWT payload: the actor, its role and home branch.
type Claims struct {
	ActorID  int64       `json:"actor_id"`
	Role     domain.Role `json:"role"`
	BranchID *int64      `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}

// LoginResult carries the token and the authenticated identity.
type LoginResult struct {
	Token    string      `json:"token"`
	ActorID  int64       `json:"actor_id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	BranchID *int64      `json:"branch_id,omitempty"`
}

// Login verifies credentials and issues a signed token. Failed lookups and
// bad passwords are indistinguishable to the caller.
func (s AuthService) Login(ctx domain.Context, username, password string) (LoginResult, error) {
	badCreds := domain.Coded(domain.ErrUnauthorized, domain.CodeAuthRequired, "invalid username or password")
	if username == "" || password == "" {
		return LoginResult{}, badCreds
	}
	var actor domain.Actor
	var found bool
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		actor, found, err = tx.Actors().FindByUsername(ctx, username)
		return err
	})
	if err != nil {
		return LoginResult{}, err
	}
	if !found || !actor.IsActive {
		return LoginResult{}, badCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(actor.PasswordHash), []byte(password)) != nil {
		return LoginResult{}, badCreds
	}
	token, err := s.issue(actor)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token: token, ActorID: actor.ID, Username: actor.Username,
		Role: actor.Role, BranchID: actor.BranchID,
	}, nil
}

// RecoverAdmin resets an admin account's password. It is guarded by the
// out-of-band recovery key from the environment, for when every admin is
// locked out.
func (s AuthService) RecoverAdmin(ctx domain.Context, recoveryKey, username, newPassword string) error {
	if s.AdminRecoveryKey == "" ||
		subtle.ConstantTimeCompare([]byte(recoveryKey), []byte(s.AdminRecoveryKey)) != 1 {
		return domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "recovery key rejected")
	}
	if len(newPassword) < 8 {
		return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "password must be at least 8 chars")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("op=auth.hash_password: %w", err)
	}
	return s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		actor, found, err := tx.Actors().FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if !found || actor.Role != domain.RoleAdmin {
			return domain.Coded(domain.ErrNotFound, domain.CodeNotFound, "no such admin account")
		}
		actor.PasswordHash = string(hash)
		if err := tx.Actors().Update(ctx, actor); err != nil {
			return err
		}
		branchID := int64(0)
		if actor.BranchID != nil {
			branchID = *actor.BranchID
		}
		_, err = tx.Activity().Insert(ctx, domain.ActivityEntry{
			BranchID: branchID, ActorID: actor.ID, Action: "auth.recover_admin",
			Details: domain.Metadata{"username": actor.Username},
		})
		return err
	})
}

// Parse validates a bearer token and returns its claims.
func (s AuthService) Parse(tokenStr string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.JWTSecret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, domain.Coded(domain.ErrUnauthorized, domain.CodeAuthRequired, "invalid or expired token")
	}
	if !claims.Role.Valid() {
		return Claims{}, domain.Coded(domain.ErrUnauthorized, domain.CodeAuthRequired, "token carries an unknown role")
	}
	return claims, nil
}

func (s AuthService) issue(actor domain.Actor) (string, error) {
	now := s.Now()
	claims := Claims{
		ActorID: actor.ID, Role: actor.Role, BranchID: actor.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("op=auth.sign_token: %w", err)
	}
	return signed, nil
}
