package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"streamwatch/internal/models"
	"streamwatch/internal/timeutil"
)

// UserRepository handles User database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(sqliteDB *SQLiteDB) *UserRepository {
	return &UserRepository{db: sqliteDB.db}
}

// Create inserts a new User. A UUID is assigned when the ID is empty.
func (r *UserRepository) Create(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := timeutil.Now()
	var hash any
	if user.PasswordHash != "" {
		hash = user.PasswordHash
	}
	_, err := r.db.Exec(`
		INSERT INTO users (id, email, name, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.Name, hash, user.IsActive, now, now)
	if err != nil {
		return err
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByEmail retrieves a User by email
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return r.scanOne(r.db.QueryRow(`
		SELECT id, email, name, password_hash, is_active, created_at, updated_at
		FROM users WHERE email = ?
	`, email))
}

// GetByID retrieves a User by ID
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	return r.scanOne(r.db.QueryRow(`
		SELECT id, email, name, password_hash, is_active, created_at, updated_at
		FROM users WHERE id = ?
	`, id))
}

// GetAllActive retrieves all users eligible for the scheduled scan
func (r *UserRepository) GetAllActive() ([]models.User, error) {
	rows, err := r.db.Query(`
		SELECT id, email, name, password_hash, is_active, created_at, updated_at
		FROM users WHERE is_active = TRUE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var hash sql.NullString
	err := row.Scan(&user.ID, &user.Email, &user.Name, &hash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if hash.Valid {
		user.PasswordHash = hash.String
	}
	return user, nil
}
