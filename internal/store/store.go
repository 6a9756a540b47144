package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/alenorgue/E-Comerce-API/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// ErrNotFound marks lookups for absent rows. Callers map it to a 404.
var ErrNotFound = errors.New("not found")

// ErrDuplicate marks unique-constraint violations such as a reused email or
// idempotency key.
var ErrDuplicate = errors.New("duplicate")

type Store struct {
	db *sqlx.DB
}

// NewStore connects to the database and configures the pool.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// CreateUser inserts a new user. Email uniqueness is enforced by the table.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, role, phone_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, user, query,
		user.Name, user.Email, user.PasswordHash, user.Role, user.PhoneNumber)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(ErrDuplicate, "email already registered")
		}
		return errors.Wrap(err, "failed to create user")
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "user %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "user %s", email)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser updates profile fields for an existing user.
func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, password_hash = $3, phone_number = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`

	err := s.db.GetContext(ctx, &user.UpdatedAt, query,
		user.Name, user.Email, user.PasswordHash, user.PhoneNumber, user.ID)
	if err == sql.ErrNoRows {
		return errors.Wrapf(ErrNotFound, "user %d", user.ID)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(ErrDuplicate, "email already registered")
		}
		return errors.Wrap(err, "failed to update user")
	}
	return nil
}

// DeleteUser removes a user. Orders are intentionally left in place.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "user %d", id)
	}
	return nil
}

// CreateProduct inserts a new catalog entry.
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, category, stock, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, product, query,
		product.Name, product.Description, product.Price, product.Category,
		product.Stock, product.ImageURL)
	return errors.Wrap(err, "failed to create product")
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "product %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// UpdateProduct updates a catalog entry.
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, category = $4, stock = $5,
		    image_url = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at`

	err := s.db.GetContext(ctx, &product.UpdatedAt, query,
		product.Name, product.Description, product.Price, product.Category,
		product.Stock, product.ImageURL, product.ID)
	if err == sql.ErrNoRows {
		return errors.Wrapf(ErrNotFound, "product %d", product.ID)
	}
	return errors.Wrap(err, "failed to update product")
}

// DeleteProduct removes a catalog entry.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete product")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "product %d", id)
	}
	return nil
}
