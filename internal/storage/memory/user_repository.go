package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// userRepositoryInMemory хранит пользователей с индексом по телефону.
type userRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]domain.User
	byPhone map[string]string
}

// NewUserRepository создаёт in-memory реализацию UserRepository.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		items:   make(map[string]domain.User),
		byPhone: make(map[string]string),
	}
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) (domain.User, error) {
	if user.Phone == "" {
		return domain.User{}, domain.NewValidationError(domain.ErrPhoneRequired)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPhone[user.Phone]; exists {
		return domain.User{}, domain.ErrUserAlreadyExists
	}
	user.PrepareNew(time.Now().UTC())
	if _, exists := r.items[user.ID]; exists {
		return domain.User{}, domain.ErrUserAlreadyExists
	}

	r.items[user.ID] = user.Clone()
	r.byPhone[user.Phone] = user.ID
	return user.Clone(), nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (r *userRepositoryInMemory) FindByPhone(_ context.Context, phone string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPhone[phone]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.items[id].Clone(), nil
}

func (r *userRepositoryInMemory) UpdateProfile(_ context.Context, phone, fullName string) (domain.User, error) {
	return r.mutateByPhone(phone, func(u *domain.User) bool {
		u.FullName = fullName
		return true
	})
}

func (r *userRepositoryInMemory) AddAddress(_ context.Context, phone string, addr domain.Address) (domain.User, error) {
	return r.mutateByPhone(phone, func(u *domain.User) bool { return u.AddAddress(addr) })
}

func (r *userRepositoryInMemory) UpdateAddress(_ context.Context, phone string, addr domain.Address) (domain.User, error) {
	return r.mutateByPhone(phone, func(u *domain.User) bool { return u.ReplaceAddress(addr) })
}

func (r *userRepositoryInMemory) RemoveAddress(_ context.Context, phone, addressID string) (domain.User, error) {
	return r.mutateByPhone(phone, func(u *domain.User) bool { return u.RemoveAddress(addressID) })
}

func (r *userRepositoryInMemory) AppendOrderID(_ context.Context, userID, orderID string) error {
	_, err := r.mutateByID(userID, func(u *domain.User) bool { return u.AppendOrderID(orderID) })
	return err
}

func (r *userRepositoryInMemory) RemoveOrderID(_ context.Context, userID, orderID string) error {
	_, err := r.mutateByID(userID, func(u *domain.User) bool { return u.RemoveOrderID(orderID) })
	return err
}

func (r *userRepositoryInMemory) ReplaceOrderIDs(_ context.Context, userID string, orderIDs []string) error {
	_, err := r.mutateByID(userID, func(u *domain.User) bool {
		u.OrderIDs = append([]string{}, orderIDs...)
		return true
	})
	return err
}

func (r *userRepositoryInMemory) mutateByPhone(phone string, mutate func(*domain.User) bool) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byPhone[phone]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.mutateLocked(id, mutate)
}

func (r *userRepositoryInMemory) mutateByID(id string, mutate func(*domain.User) bool) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mutateLocked(id, mutate)
}

func (r *userRepositoryInMemory) mutateLocked(id string, mutate func(*domain.User) bool) (domain.User, error) {
	current, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	user := current.Clone()
	if mutate(&user) {
		user.UpdatedAt = time.Now().UTC()
		r.items[id] = user
	}
	return r.items[id].Clone(), nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
