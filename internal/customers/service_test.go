package customers

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/pkg/config"
	"github.com/golosretail/golos-backend/pkg/db/models"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
)

type fakeRepository struct {
	byEmail map[string]*models.Customer
	byID    map[uuid.UUID]*models.Customer
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byEmail: map[string]*models.Customer{},
		byID:    map[uuid.UUID]*models.Customer{},
	}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, customer *models.Customer) error {
	customer.ID = uuid.New()
	f.byEmail[strings.ToLower(customer.Email)] = customer
	f.byID[customer.ID] = customer
	return nil
}

func (f *fakeRepository) FindByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return f.byEmail[strings.ToLower(email)], nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return f.byID[id], nil
}

func testConfigs() (config.JWTConfig, config.PasswordConfig) {
	return config.JWTConfig{
			Secret:            "test-secret",
			Issuer:            "golos-test",
			ExpirationMinutes: 30,
		}, config.PasswordConfig{
			ArgonMemoryKB:    32768,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
		}
}

func TestRegisterThenLogin(t *testing.T) {
	repo := newFakeRepository()
	jwtCfg, pwCfg := testConfigs()
	svc, err := NewService(repo, jwtCfg, pwCfg)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Email:     "Maria@Example.com",
		Password:  "correct-horse",
		FirstName: "Maria",
		LastName:  "Gomez",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	if resp.Customer.Email != "maria@example.com" {
		t.Fatalf("email not normalized: %q", resp.Customer.Email)
	}

	login, err := svc.Login(context.Background(), LoginRequest{
		Email:    "maria@example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if login.Customer.ID != resp.Customer.ID {
		t.Fatal("login returned a different account")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	jwtCfg, pwCfg := testConfigs()
	svc, _ := NewService(repo, jwtCfg, pwCfg)

	req := RegisterRequest{
		Email:     "dup@example.com",
		Password:  "password-one",
		FirstName: "A",
		LastName:  "B",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := svc.Register(context.Background(), req)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	repo := newFakeRepository()
	jwtCfg, pwCfg := testConfigs()
	svc, _ := NewService(repo, jwtCfg, pwCfg)

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:     "user@example.com",
		Password:  "right-password",
		FirstName: "A",
		LastName:  "B",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	tests := []struct {
		name string
		req  LoginRequest
	}{
		{name: "wrong password", req: LoginRequest{Email: "user@example.com", Password: "wrong"}},
		{name: "unknown email", req: LoginRequest{Email: "ghost@example.com", Password: "right-password"}},
		{name: "empty", req: LoginRequest{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.req)
			if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestRegister_Validation(t *testing.T) {
	repo := newFakeRepository()
	jwtCfg, pwCfg := testConfigs()
	svc, _ := NewService(repo, jwtCfg, pwCfg)

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{name: "missing email", req: RegisterRequest{Password: "long-enough", FirstName: "A", LastName: "B"}},
		{name: "short password", req: RegisterRequest{Email: "a@b.co", Password: "short", FirstName: "A", LastName: "B"}},
		{name: "missing names", req: RegisterRequest{Email: "a@b.co", Password: "long-enough"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.req)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
