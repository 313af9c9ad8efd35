package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	userrepo "github.com/workhub/escrow-backend/internal/data/repos/user"
	types "github.com/workhub/escrow-backend/internal/domain"
	userdom "github.com/workhub/escrow-backend/internal/domain/user"
	"github.com/workhub/escrow-backend/internal/pkg/ctxutil"
	"github.com/workhub/escrow-backend/internal/pkg/dbctx"
	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

type RegisterInput struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FullName      string `json:"full_name"`
	WalletAddress string `json:"wallet_address"`
	Role          string `json:"role"`
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*types.User, error)
	Login(ctx context.Context, email, password string) (*types.User, string, string, error)
	Refresh(ctx context.Context, refreshToken string) (string, string, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	AccessTTL() time.Duration
}

type authService struct {
	db           *gorm.DB
	log          *logger.Logger
	userRepo     userrepo.UserRepo
	jwtSecretKey []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

func NewAuthService(db *gorm.DB, log *logger.Logger, userRepo userrepo.UserRepo, jwtSecretKey string, accessTTL, refreshTTL time.Duration) AuthService {
	return &authService{
		db:           db,
		log:          log.With("service", "AuthService"),
		userRepo:     userRepo,
		jwtSecretKey: []byte(jwtSecretKey),
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
	}
}

type authClaims struct {
	Wallet string `json:"wallet,omitempty"`
	Role   string `json:"role"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

func (as *authService) Register(ctx context.Context, in RegisterInput) (*types.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	role := strings.TrimSpace(in.Role)
	switch role {
	case userdom.RoleEmployer, userdom.RoleFreelancer, userdom.RoleArbiter:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	existing, err := as.userRepo.GetByEmail(dbctx.Context{Ctx: ctx}, email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &types.User{
		Email:         email,
		PasswordHash:  string(hash),
		FullName:      strings.TrimSpace(in.FullName),
		WalletAddress: strings.TrimSpace(in.WalletAddress),
		Role:          role,
		Active:        true,
	}
	if err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := as.userRepo.Create(dbctx.Context{Ctx: ctx, Tx: tx}, user)
		if err != nil {
			return err
		}
		user = created
		return nil
	}); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*types.User, string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := as.userRepo.GetByEmail(dbctx.Context{Ctx: ctx}, email)
	if err != nil {
		return nil, "", "", fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, "", "", fmt.Errorf("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", "", fmt.Errorf("invalid email or password")
	}

	access, err := as.signToken(user, "access", as.accessTTL)
	if err != nil {
		return nil, "", "", err
	}
	refresh, err := as.signToken(user, "refresh", as.refreshTTL)
	if err != nil {
		return nil, "", "", err
	}
	return user, access, refresh, nil
}

func (as *authService) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := as.parseToken(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}
	if claims.Kind != "refresh" {
		return "", "", fmt.Errorf("not a refresh token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh subject: %w", err)
	}
	user, err := as.userRepo.GetByID(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return "", "", fmt.Errorf("load user: %w", err)
	}
	if user == nil || !user.Active {
		return "", "", fmt.Errorf("user is no longer active")
	}

	access, err := as.signToken(user, "access", as.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err := as.signToken(user, "refresh", as.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	claims, err := as.parseToken(tokenString)
	if err != nil {
		return ctx, err
	}
	if claims.Kind != "access" {
		return ctx, fmt.Errorf("not an access token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, fmt.Errorf("invalid token subject: %w", err)
	}
	rd := &ctxutil.RequestData{
		UserID: userID,
		Wallet: claims.Wallet,
		Role:   claims.Role,
	}
	if prev := ctxutil.GetRequestData(ctx); prev != nil {
		rd.RequestID = prev.RequestID
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}

func (as *authService) AccessTTL() time.Duration { return as.accessTTL }

func (as *authService) signToken(user *types.User, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := authClaims{
		Wallet: user.WalletAddress,
		Role:   user.Role,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(as.jwtSecretKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (as *authService) parseToken(tokenString string) (*authClaims, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return as.jwtSecretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}
