package account_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func home() *domain.Address {
	return &domain.Address{Line: "Peace Ave 5", City: "Ulaanbaatar", District: "Sukhbaatar"}
}

func TestRegister_CreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	svc := account.NewService(memory.NewUserRepository(), nil)

	user, created, err := svc.Register(ctx, account.RegisterInput{FullName: "Bat", Phone: "+976 9911-2233", Address: home()})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !created {
		t.Fatal("expected a new user")
	}
	if user.Phone != "+97699112233" {
		t.Fatalf("phone must be normalized, got %q", user.Phone)
	}
	if len(user.Addresses) != 1 || user.Addresses[0].ID == "" {
		t.Fatalf("expected one address with id, got %+v", user.Addresses)
	}

	same := home()
	same.Line = "  peace ave 5 "
	user, created, err = svc.Register(ctx, account.RegisterInput{FullName: "Bat Erdene", Phone: "+97699112233", Address: same})
	if err != nil {
		t.Fatalf("second register failed: %v", err)
	}
	if created {
		t.Fatal("existing user must be updated, not created")
	}
	if user.FullName != "Bat Erdene" {
		t.Fatalf("name must be updated, got %q", user.FullName)
	}
	if len(user.Addresses) != 1 {
		t.Fatalf("duplicate address must not be added: %+v", user.Addresses)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := account.NewService(memory.NewUserRepository(), nil)

	tests := []struct {
		name string
		in   account.RegisterInput
		want error
	}{
		{name: "no name", in: account.RegisterInput{Phone: "99112233"}, want: domain.ErrFullNameRequired},
		{name: "no phone", in: account.RegisterInput{FullName: "Bat", Phone: "--"}, want: domain.ErrPhoneRequired},
		{name: "bad address", in: account.RegisterInput{FullName: "Bat", Phone: "99112233", Address: &domain.Address{Line: "x"}}, want: domain.ErrCityRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tt.in)
			if !domain.IsValidation(err) || !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSignup_DuplicatePhone(t *testing.T) {
	ctx := context.Background()
	svc := account.NewService(memory.NewUserRepository(), nil)

	if _, err := svc.Signup(ctx, account.RegisterInput{FullName: "Bat", Phone: "99112233"}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	_, err := svc.Signup(ctx, account.RegisterInput{FullName: "Other", Phone: "9911 2233"})
	if !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAddressLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := account.NewService(memory.NewUserRepository(), nil)

	if _, _, err := svc.Register(ctx, account.RegisterInput{FullName: "Bat", Phone: "99112233"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, err := svc.AddAddress(ctx, "99112233", *home())
	if err != nil {
		t.Fatalf("add address: %v", err)
	}
	if len(user.Addresses) != 1 {
		t.Fatalf("expected 1 address, got %d", len(user.Addresses))
	}
	addrID := user.Addresses[0].ID

	updated := *home()
	updated.ID = addrID
	updated.Notes = "gate code 42"
	user, err = svc.UpdateAddress(ctx, "99112233", updated)
	if err != nil || user.Addresses[0].Notes != "gate code 42" {
		t.Fatalf("update address: %+v %v", user.Addresses, err)
	}

	unknown := *home()
	unknown.ID = "missing"
	unknown.City = "Darkhan"
	user, err = svc.UpdateAddress(ctx, "99112233", unknown)
	if err != nil || user.Addresses[0].City != "Ulaanbaatar" {
		t.Fatalf("unknown address id must be a silent no-op: %+v %v", user.Addresses, err)
	}

	if _, err := svc.UpdateAddress(ctx, "99112233", *home()); !errors.Is(err, account.ErrAddressIDRequired) {
		t.Fatalf("expected address id required, got %v", err)
	}

	user, err = svc.RemoveAddress(ctx, "99112233", addrID)
	if err != nil || len(user.Addresses) != 0 {
		t.Fatalf("remove address: %+v %v", user.Addresses, err)
	}
}

func TestFindByPhone(t *testing.T) {
	ctx := context.Background()
	svc := account.NewService(memory.NewUserRepository(), nil)

	if _, err := svc.FindByPhone(ctx, ""); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.FindByPhone(ctx, "99112233"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.AddAddress(ctx, "99112233", *home()); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected not found for unknown phone, got %v", err)
	}
}
