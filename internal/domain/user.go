package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Address — адрес доставки, принадлежит пользователю.
type Address struct {
	ID       string
	FullName string
	Phone    string
	Line     string
	City     string
	District string
	Notes    string
}

// SameLocation сравнивает адреса по (строка адреса, город, район) для защиты от дублей.
func (a Address) SameLocation(other Address) bool {
	return normalizeAddressPart(a.Line) == normalizeAddressPart(other.Line) &&
		normalizeAddressPart(a.City) == normalizeAddressPart(other.City) &&
		normalizeAddressPart(a.District) == normalizeAddressPart(other.District)
}

// Validate проверяет обязательные поля адреса.
func (a Address) Validate() error {
	var problems []error
	if strings.TrimSpace(a.Line) == "" {
		problems = append(problems, ErrAddressLineRequired)
	}
	if strings.TrimSpace(a.City) == "" {
		problems = append(problems, ErrCityRequired)
	}
	if strings.TrimSpace(a.District) == "" {
		problems = append(problems, ErrDistrictRequired)
	}
	return NewValidationError(problems...)
}

func normalizeAddressPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// User — покупатель; телефон служит внешним ключом поиска.
type User struct {
	ID        string
	FullName  string
	Phone     string
	Addresses []Address
	// OrderIDs — денормализованный список заказов, может быть перестроен из хранилища заказов.
	OrderIDs  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FindAddress ищет адрес по идентификатору.
func (u User) FindAddress(id string) (Address, bool) {
	for _, a := range u.Addresses {
		if a.ID == id {
			return a, true
		}
	}
	return Address{}, false
}

// HasLocation сообщает, есть ли у пользователя адрес с тем же местоположением.
func (u User) HasLocation(addr Address) bool {
	for _, a := range u.Addresses {
		if a.SameLocation(addr) {
			return true
		}
	}
	return false
}

// HasOrder проверяет наличие заказа в денормализованном списке.
func (u User) HasOrder(orderID string) bool {
	for _, id := range u.OrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}

// AddAddress добавляет адрес, если такого местоположения ещё нет.
// Возвращает false, если список не изменился.
func (u *User) AddAddress(addr Address) bool {
	if u.HasLocation(addr) {
		return false
	}
	if addr.ID == "" {
		addr.ID = uuid.NewString()
	}
	u.Addresses = append(u.Addresses, addr)
	return true
}

// ReplaceAddress заменяет адрес с тем же ID.
func (u *User) ReplaceAddress(addr Address) bool {
	for i := range u.Addresses {
		if u.Addresses[i].ID == addr.ID {
			u.Addresses[i] = addr
			return true
		}
	}
	return false
}

// RemoveAddress удаляет адрес по ID.
func (u *User) RemoveAddress(addressID string) bool {
	kept := make([]Address, 0, len(u.Addresses))
	for _, a := range u.Addresses {
		if a.ID != addressID {
			kept = append(kept, a)
		}
	}
	removed := len(kept) != len(u.Addresses)
	u.Addresses = kept
	return removed
}

// AppendOrderID добавляет заказ без дублей.
func (u *User) AppendOrderID(orderID string) bool {
	if u.HasOrder(orderID) {
		return false
	}
	u.OrderIDs = append(u.OrderIDs, orderID)
	return true
}

// RemoveOrderID убирает заказ из денормализованного списка.
func (u *User) RemoveOrderID(orderID string) bool {
	kept := make([]string, 0, len(u.OrderIDs))
	for _, id := range u.OrderIDs {
		if id != orderID {
			kept = append(kept, id)
		}
	}
	removed := len(kept) != len(u.OrderIDs)
	u.OrderIDs = kept
	return removed
}

// PrepareNew заполняет ID пользователя и адресов, а также временные метки.
func (u *User) PrepareNew(now time.Time) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.OrderIDs == nil {
		u.OrderIDs = []string{}
	}
	for i := range u.Addresses {
		if u.Addresses[i].ID == "" {
			u.Addresses[i].ID = uuid.NewString()
		}
	}
}

// Clone возвращает глубокую копию пользователя.
func (u User) Clone() User {
	dst := u
	dst.Addresses = append([]Address(nil), u.Addresses...)
	dst.OrderIDs = append([]string(nil), u.OrderIDs...)
	return dst
}

// NormalizePhone убирает пробелы и разделители из номера.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
