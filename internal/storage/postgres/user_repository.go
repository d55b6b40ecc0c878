package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const userColumns = `id, full_name, phone, addresses, order_ids, created_at, updated_at`

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
// Адреса и список заказов хранятся в JSONB; изменения выполняются под блокировкой строки.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if user.Phone == "" {
		return domain.User{}, domain.NewValidationError(domain.ErrPhoneRequired)
	}
	user.PrepareNew(time.Now().UTC())

	addresses, err := marshalJSON(addressRows(user.Addresses))
	if err != nil {
		return domain.User{}, err
	}
	orderIDs, err := marshalJSON(user.OrderIDs)
	if err != nil {
		return domain.User{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.FullName, user.Phone, addresses, orderIDs, user.CreatedAt, user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrUserAlreadyExists
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *userRepository) FindByPhone(ctx context.Context, phone string) (domain.User, error) {
	return r.getOne(ctx, `phone = $1`, phone)
}

func (r *userRepository) getOne(ctx context.Context, where string, arg string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, phone, fullName string) (domain.User, error) {
	return r.mutate(ctx, `phone = $1`, phone, func(u *domain.User) bool {
		u.FullName = fullName
		return true
	})
}

func (r *userRepository) AddAddress(ctx context.Context, phone string, addr domain.Address) (domain.User, error) {
	return r.mutate(ctx, `phone = $1`, phone, func(u *domain.User) bool { return u.AddAddress(addr) })
}

func (r *userRepository) UpdateAddress(ctx context.Context, phone string, addr domain.Address) (domain.User, error) {
	return r.mutate(ctx, `phone = $1`, phone, func(u *domain.User) bool { return u.ReplaceAddress(addr) })
}

func (r *userRepository) RemoveAddress(ctx context.Context, phone, addressID string) (domain.User, error) {
	return r.mutate(ctx, `phone = $1`, phone, func(u *domain.User) bool { return u.RemoveAddress(addressID) })
}

func (r *userRepository) AppendOrderID(ctx context.Context, userID, orderID string) error {
	_, err := r.mutate(ctx, `id = $1`, userID, func(u *domain.User) bool { return u.AppendOrderID(orderID) })
	return err
}

func (r *userRepository) RemoveOrderID(ctx context.Context, userID, orderID string) error {
	_, err := r.mutate(ctx, `id = $1`, userID, func(u *domain.User) bool { return u.RemoveOrderID(orderID) })
	return err
}

func (r *userRepository) ReplaceOrderIDs(ctx context.Context, userID string, orderIDs []string) error {
	_, err := r.mutate(ctx, `id = $1`, userID, func(u *domain.User) bool {
		u.OrderIDs = append([]string{}, orderIDs...)
		return true
	})
	return err
}

// mutate читает пользователя с блокировкой строки, применяет изменение и сохраняет результат.
func (r *userRepository) mutate(ctx context.Context, where, arg string, fn func(*domain.User) bool) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var result domain.User
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		user, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE `+where+` FOR UPDATE`, arg))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}
		if !fn(&user) {
			result = user
			return nil
		}
		user.UpdatedAt = time.Now().UTC()

		addresses, err := marshalJSON(addressRows(user.Addresses))
		if err != nil {
			return err
		}
		orderIDs, err := marshalJSON(nonNilStrings(user.OrderIDs))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users
			SET full_name = $2, addresses = $3, order_ids = $4, updated_at = $5
			WHERE id = $1
		`, user.ID, user.FullName, addresses, orderIDs, user.UpdatedAt); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		result = user
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return result, nil
}

// addressRow — представление адреса в JSONB-колонке.
type addressRow struct {
	ID       string `json:"id"`
	FullName string `json:"fullName,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Line     string `json:"address"`
	City     string `json:"city"`
	District string `json:"district"`
	Notes    string `json:"notes,omitempty"`
}

func addressRows(addresses []domain.Address) []addressRow {
	rows := make([]addressRow, 0, len(addresses))
	for _, a := range addresses {
		rows = append(rows, addressRow(a))
	}
	return rows
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                   domain.User
		addresses, orderIDs []byte
		rows                []addressRow
	)
	if err := row.Scan(&u.ID, &u.FullName, &u.Phone, &addresses, &orderIDs, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	if err := unmarshalJSON(addresses, &rows); err != nil {
		return domain.User{}, err
	}
	for _, a := range rows {
		u.Addresses = append(u.Addresses, domain.Address(a))
	}
	if err := unmarshalJSON(orderIDs, &u.OrderIDs); err != nil {
		return domain.User{}, err
	}
	if u.OrderIDs == nil {
		u.OrderIDs = []string{}
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
