package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	auth "github.com/cargodesk/go-portal-auth"
)

// UserModel is the Bun model for portal users.
type UserModel struct {
	bun.BaseModel `bun:"table:users"`

	ID           string    `bun:"id,pk"`
	Name         string    `bun:"name,notnull"`
	Email        string    `bun:"email,notnull"`
	PasswordHash string    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// UserRepository implements auth.CredentialStore using Bun.
type UserRepository struct {
	db bun.IDB
}

var _ auth.CredentialStore = (*UserRepository)(nil)

// NewUserRepository creates a new repository.
func NewUserRepository(db bun.IDB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail implements auth.CredentialStore.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	var model UserModel
	err := r.db.NewSelect().
		Model(&model).
		Where("email = ?", auth.NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrRecordNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to query user by email")
	}
	return toRecord(&model), nil
}

// Create implements auth.CredentialStore.
func (r *UserRepository) Create(ctx context.Context, record *auth.UserRecord) (*auth.UserRecord, error) {
	if record == nil {
		return nil, auth.ErrMissingField
	}

	model := fromRecord(record)
	if model.Email == "" {
		return nil, auth.ErrMissingField
	}
	if model.ID == "" {
		model.ID = auth.NewRecordID()
	}

	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, auth.ErrEmailTaken
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to insert user")
	}

	return toRecord(model), nil
}

func toRecord(m *UserModel) *auth.UserRecord {
	return &auth.UserRecord{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
	}
}

func fromRecord(r *auth.UserRecord) *UserModel {
	return &UserModel{
		ID:           r.ID,
		Name:         strings.TrimSpace(r.Name),
		Email:        auth.NormalizeEmail(r.Email),
		PasswordHash: r.PasswordHash,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
