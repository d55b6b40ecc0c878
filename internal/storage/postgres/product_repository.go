package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const productColumns = `
	id, code, name, description, price_minor, original_price_minor,
	image, images, tags, sizes, stock, legacy_stock, created_at, updated_at`

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	args, err := productArgs(product)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductAlreadyExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return getProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *productRepository) GetByCode(ctx context.Context, code string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return getProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE code = $1`, code))
}

func getProduct(row *sql.Row) (domain.Product, error) {
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conditions []string
		args       []any
	)
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		conditions = append(conditions, fmt.Sprintf("jsonb_exists(tags, $%d::text)", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(`(
			name ILIKE $%[1]d OR description ILIKE $%[1]d OR COALESCE(code, '') ILIKE $%[1]d
			OR EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags) t WHERE t ILIKE $%[1]d)
		)`, n))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	args, err := productArgs(product)
	if err != nil {
		return err
	}
	// created_at не перезаписывается.
	args = append(args[:12:12], args[13])
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET code = $2,
		    name = $3,
		    description = $4,
		    price_minor = $5,
		    original_price_minor = $6,
		    image = $7,
		    images = $8,
		    tags = $9,
		    sizes = $10,
		    stock = $11,
		    legacy_stock = $12,
		    updated_at = $13
		WHERE id = $1
	`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProductAlreadyExists
		}
		return fmt.Errorf("update product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// UpdateDetails не трогает stock и legacy_stock: остаток в строке меняют только
// DecrementStock и RestoreStock под блокировкой строки.
func (r *productRepository) UpdateDetails(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	args, err := productArgs(product)
	if err != nil {
		return domain.Product{}, err
	}
	stored, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products
		SET code = $2,
		    name = $3,
		    description = $4,
		    price_minor = $5,
		    original_price_minor = $6,
		    image = $7,
		    images = $8,
		    tags = $9,
		    sizes = $10,
		    updated_at = $11
		WHERE id = $1
		RETURNING `+productColumns,
		args[0], args[1], args[2], args[3], args[4], args[5], args[6], args[7], args[8], args[9], args[13],
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		if isUniqueViolation(err) {
			return domain.Product{}, domain.ErrProductAlreadyExists
		}
		return domain.Product{}, fmt.Errorf("update product details: %w", err)
	}
	return stored, nil
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// DecrementStock блокирует строку товара (SELECT ... FOR UPDATE), проверяет и списывает
// остаток в одной транзакции, поэтому параллельные списания сериализуются.
func (r *productRepository) DecrementStock(ctx context.Context, id, size string, qty int) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var result domain.Product
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		product, err := r.lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		result = product

		updated := product.Clone()
		if err := updated.ApplyDecrement(size, qty); err != nil {
			return err
		}
		if err := r.writeStock(ctx, tx, &updated); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		if domain.IsInsufficientStock(err) {
			return result, err
		}
		return domain.Product{}, err
	}
	return result, nil
}

func (r *productRepository) RestoreStock(ctx context.Context, id, size string, qty int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		product, err := r.lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		product.ApplyRestore(size, qty)
		return r.writeStock(ctx, tx, &product)
	})
}

func (r *productRepository) Tags(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT tag
		FROM products, jsonb_array_elements_text(tags) AS tag
		WHERE btrim(tag) <> ''
		ORDER BY tag
	`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

func (r *productRepository) RemoveTag(ctx context.Context, tag string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET tags = tags - $1::text,
		    updated_at = $2
		WHERE jsonb_exists(tags, $1::text)
	`, tag, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("remove tag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *productRepository) lockProduct(ctx context.Context, tx *sql.Tx, id string) (domain.Product, error) {
	product, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("lock product: %w", err)
	}
	return product, nil
}

func (r *productRepository) writeStock(ctx context.Context, tx *sql.Tx, product *domain.Product) error {
	stock, err := stockArg(product.Stock)
	if err != nil {
		return err
	}
	product.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = $2, legacy_stock = $3, updated_at = $4
		WHERE id = $1
	`, product.ID, stock, nullableInt(product.LegacyStock), product.UpdatedAt); err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return nil
}

func productArgs(p domain.Product) ([]any, error) {
	images, err := marshalJSON(nonNilStrings(p.Images))
	if err != nil {
		return nil, err
	}
	tags, err := marshalJSON(nonNilStrings(p.Tags))
	if err != nil {
		return nil, err
	}
	sizes, err := marshalJSON(nonNilStrings(p.Sizes))
	if err != nil {
		return nil, err
	}
	stock, err := stockArg(p.Stock)
	if err != nil {
		return nil, err
	}
	code := sql.NullString{String: p.Code, Valid: p.Code != ""}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return []any{
		p.ID, code, p.Name, p.Description, p.PriceMinor, p.OriginalPriceMinor,
		p.Image, images, tags, sizes, stock, nullableInt(p.LegacyStock), createdAt, updatedAt,
	}, nil
}

// stockArg возвращает NULL для неучитываемых остатков.
func stockArg(stock domain.Stock) (any, error) {
	if !stock.Tracked() {
		return nil, nil
	}
	return marshalJSON(stock)
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p                        domain.Product
		code                     sql.NullString
		images, tags, sizes, raw []byte
		legacy                   sql.NullInt64
	)
	if err := row.Scan(
		&p.ID, &code, &p.Name, &p.Description, &p.PriceMinor, &p.OriginalPriceMinor,
		&p.Image, &images, &tags, &sizes, &raw, &legacy, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	p.Code = code.String
	if err := unmarshalJSON(images, &p.Images); err != nil {
		return domain.Product{}, err
	}
	if err := unmarshalJSON(tags, &p.Tags); err != nil {
		return domain.Product{}, err
	}
	if err := unmarshalJSON(sizes, &p.Sizes); err != nil {
		return domain.Product{}, err
	}
	if err := unmarshalJSON(raw, &p.Stock); err != nil {
		return domain.Product{}, err
	}
	if legacy.Valid {
		v := int(legacy.Int64)
		p.LegacyStock = &v
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ domain.ProductRepository = (*productRepository)(nil)
