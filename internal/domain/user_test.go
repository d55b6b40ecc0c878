package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestAddressSameLocation(t *testing.T) {
	a := domain.Address{Line: "Bağdat Cd. 10", City: "İstanbul", District: "Kadıköy"}

	tests := []struct {
		name  string
		other domain.Address
		want  bool
	}{
		{name: "identical", other: a, want: true},
		{name: "different spacing", other: domain.Address{Line: " Bağdat  Cd. 10 ", City: "İstanbul", District: "Kadıköy"}, want: true},
		{name: "different notes ignored", other: domain.Address{Line: a.Line, City: a.City, District: a.District, Notes: "ring twice"}, want: true},
		{name: "different district", other: domain.Address{Line: a.Line, City: a.City, District: "Moda"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.SameLocation(tt.other); got != tt.want {
				t.Fatalf("SameLocation()=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserHelpers(t *testing.T) {
	user := domain.User{
		Addresses: []domain.Address{{ID: "a1", Line: "x", City: "y", District: "z"}},
		OrderIDs:  []string{"o1"},
	}

	if _, ok := user.FindAddress("a1"); !ok {
		t.Fatal("expected address a1")
	}
	if _, ok := user.FindAddress("a2"); ok {
		t.Fatal("unexpected address a2")
	}
	if !user.HasLocation(domain.Address{Line: "X", City: "Y", District: "Z"}) {
		t.Fatal("expected location match")
	}
	if !user.HasOrder("o1") || user.HasOrder("o2") {
		t.Fatal("unexpected HasOrder result")
	}

	clone := user.Clone()
	clone.OrderIDs[0] = "changed"
	if user.OrderIDs[0] != "o1" {
		t.Fatal("clone must not share order ids")
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"+90 555 111 22 33": "+905551112233",
		"(555) 111-22-33":   "5551112233",
		"  ":                "",
		"5+55":              "555",
	}
	for in, want := range tests {
		if got := domain.NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestAddressValidate(t *testing.T) {
	if err := (domain.Address{Line: "l", City: "c", District: "d"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (domain.Address{}).Validate(); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
