package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"freightmatch/apperr"
)

func validRegistration() RegisterRequest {
	return RegisterRequest{
		Email:         "tanaka@example.com",
		Password:      "supersafe",
		Role:          RoleShipper,
		CompanyName:   "Tanaka Shoji",
		ContactPerson: "Taro Tanaka",
		Phone:         "03-1234-5678",
	}
}

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := validRegistration()
	ctx := context.Background()
	user, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if user.Email != req.Email {
		t.Fatalf("expected email %q got %q", req.Email, user.Email)
	}
	if user.Role != RoleShipper {
		t.Fatalf("register: expected role %s got %s", RoleShipper, user.Role)
	}
	if user.VerificationStatus != VerificationPending {
		t.Fatalf("register: expected pending verification got %s", user.VerificationStatus)
	}
	if user.PasswordHash == req.Password {
		t.Fatal("register: password stored in clear text")
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: "TANAKA@example.com", Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.User.ID != user.ID {
		t.Fatalf("login: expected user id %q got %q", user.ID, resp.User.ID)
	}

	identity, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if identity.UserID != user.ID {
		t.Fatalf("verify token: expected %q got %q", user.ID, identity.UserID)
	}
	if identity.Role != RoleShipper {
		t.Fatalf("verify token: expected role %s got %s", RoleShipper, identity.Role)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")
	ctx := context.Background()

	weak := validRegistration()
	weak.Password = "short"
	if _, err := svc.Register(ctx, weak); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	missing := validRegistration()
	missing.CompanyName = ""
	if _, err := svc.Register(ctx, missing); apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected validation error for missing company, got %v", err)
	}

	badEmail := validRegistration()
	badEmail.Email = "not-an-email"
	if _, err := svc.Register(ctx, badEmail); apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected validation error for email, got %v", err)
	}
}

func TestService_RegisterRejectsAdminAndUnknownRoles(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")

	for _, role := range []Role{RoleAdmin, "DISPATCHER", ""} {
		req := validRegistration()
		req.Role = role
		if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("role %q: expected ErrInvalidRole, got %v", role, err)
		}
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")

	req := validRegistration()
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = svc.Login(context.Background(), LoginRequest{Email: "tanaka@example.com", Password: "wrong-password"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestService_VerifyTokenRejectsTampering(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")
	other := NewService(newFakeRepository(), "other-secret")

	token, err := other.generateToken("user-1", RoleCarrier)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := svc.VerifyToken(token); apperr.KindOf(err) != apperr.Authentication {
		t.Fatalf("expected authentication error for foreign signature, got %v", err)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-1",
		"role":    "SUPERUSER",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := forged.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}
	if _, err := svc.VerifyToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown role, got %v", err)
	}
}

func TestService_VerifyTokenExpired(t *testing.T) {
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(newFakeRepository(), "test-secret").WithClock(func() time.Time { return issued })
	token, err := svc.generateToken("user-1", RoleShipper)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	svc.WithClock(func() time.Time { return issued.Add(tokenTTL + time.Minute) })
	if _, err := svc.VerifyToken(token); apperr.KindOf(err) != apperr.Authentication {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

type fakeRepository struct {
	usersByEmail map[string]User
	usersByID    map[string]User
	nextID       int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		usersByEmail: make(map[string]User),
		usersByID:    make(map[string]User),
		nextID:       1,
	}
}

func (f *fakeRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if _, exists := f.usersByEmail[strings.ToLower(params.Email)]; exists {
		return User{}, ErrDuplicateEmail
	}

	id := fmt.Sprintf("user-%d", f.nextID)
	f.nextID++

	user := User{
		ID:                 id,
		Email:              params.Email,
		PasswordHash:       params.PasswordHash,
		Role:               params.Role,
		CompanyName:        params.CompanyName,
		ContactPerson:      params.ContactPerson,
		Phone:              params.Phone,
		Address:            params.Address,
		VerificationStatus: VerificationPending,
		TrustScore:         decimal.NewFromInt(5),
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}

	f.usersByEmail[strings.ToLower(user.Email)] = user
	f.usersByID[user.ID] = user

	return user, nil
}

func (f *fakeRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, ok := f.usersByID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}
