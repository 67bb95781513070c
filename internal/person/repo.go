package person

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mehmetcc/tenantcore/pkg/id"
	"go.uber.org/zap"
)

type PersonDTO struct {
	Email    string
	Username string
	Password string // already hashed
	Role     Role
}

// PersonRepo is the credential store. Finders return (nil, nil) when no
// row matches so callers decide how much to reveal about absence.
type PersonRepo interface {
	Create(ctx context.Context, dto *PersonDTO) (id.PublicID, error)
	FindByEmail(ctx context.Context, email string) (*Person, error)
	FindByPublicID(ctx context.Context, publicID id.PublicID) (*Person, error)
	UpdatePassword(ctx context.Context, publicID id.PublicID, hash string) error
	Ping(ctx context.Context) error
}

type personRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPersonRepo(db *sql.DB, logger *zap.Logger) PersonRepo {
	return &personRepo{
		db:     db,
		logger: logger,
	}
}

const (
	personColumns = `id, public_id, email, username, password, role, company_id, verified_at, is_active, is_deleted, created_at, updated_at`

	insertPersonQuery = `
						INSERT INTO persons (email, username, password, role, is_active, is_deleted)
						VALUES ($1, $2, $3, $4, $5, $6)
						RETURNING id, public_id, created_at, updated_at
						`
	findPersonByEmailQuery = `
						SELECT ` + personColumns + `
						FROM persons
						WHERE lower(email) = lower($1)
						LIMIT 1
						`
	findPersonByPublicIDQuery = `
						SELECT ` + personColumns + `
						FROM persons
						WHERE public_id = $1
						LIMIT 1
						`
	updatePasswordQuery = `
						UPDATE persons
						SET password = $2, updated_at = now()
						WHERE public_id = $1 AND is_deleted = false
						`
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *personRepo) Create(ctx context.Context, dto *PersonDTO) (id.PublicID, error) {
	role := dto.Role
	if role == "" {
		role = RoleOwner
	}
	row := p.db.QueryRowContext(ctx,
		insertPersonQuery,
		NormalizeEmail(dto.Email),
		strings.TrimSpace(dto.Username),
		dto.Password,
		role,
		true,
		false,
	)

	var publicID id.PublicID
	var pk int64
	var createdAt, updatedAt time.Time

	if err := row.Scan(&pk, &publicID, &createdAt, &updatedAt); err != nil {
		// context canceled/deadline
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			p.logger.Warn("create person canceled/timed out", zap.Error(err))
			return "", err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				if dupErr := duplicateError(pgErr); dupErr != nil {
					p.logger.Debug("duplicate person", zap.String("constraint", pgErr.ConstraintName), zap.Error(dupErr))
					return "", dupErr
				}
			}
			p.logger.Error("postgres error",
				zap.String("code", pgErr.Code),
				zap.String("msg", pgErr.Message),
				zap.String("detail", pgErr.Detail),
			)
			return "", err
		}

		p.logger.Error("driver/scan error", zap.Error(err))
		return "", err
	}

	p.logger.Debug("person created",
		zap.Int64("id", pk),
		zap.String("public_id", string(publicID)),
	)

	return publicID, nil
}

// duplicateError maps a unique violation to the column it hit. The email
// index is on lower(email), so the constraint name is not always set.
func duplicateError(pgErr *pgconn.PgError) error {
	switch pgErr.ConstraintName {
	case "persons_email_key", "persons_email_lower_idx":
		return ErrDuplicateEmail
	case "persons_username_key":
		return ErrDuplicateUsername
	}
	det := strings.ToLower(pgErr.Detail)
	if strings.Contains(det, "lower(email") || strings.Contains(det, "(email)") {
		return ErrDuplicateEmail
	}
	if strings.Contains(det, "(username)") {
		return ErrDuplicateUsername
	}
	return nil
}

func (p *personRepo) FindByEmail(ctx context.Context, email string) (*Person, error) {
	return p.findOne(ctx, findPersonByEmailQuery, NormalizeEmail(email))
}

func (p *personRepo) FindByPublicID(ctx context.Context, publicID id.PublicID) (*Person, error) {
	return p.findOne(ctx, findPersonByPublicIDQuery, string(publicID))
}

func (p *personRepo) findOne(ctx context.Context, query string, arg any) (*Person, error) {
	var (
		rec        Person
		companyID  sql.NullString
		verifiedAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, query, arg).Scan(
		&rec.ID,
		&rec.PublicID,
		&rec.Email,
		&rec.Username,
		&rec.Password,
		&rec.Role,
		&companyID,
		&verifiedAt,
		&rec.IsActive,
		&rec.IsDeleted,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		p.logger.Error("failed to lookup person", zap.Error(err))
		return nil, err
	}
	if companyID.Valid {
		rec.CompanyID = companyID.String
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		rec.VerifiedAt = &t
	}
	return &rec, nil
}

func (p *personRepo) UpdatePassword(ctx context.Context, publicID id.PublicID, hash string) error {
	res, err := p.db.ExecContext(ctx, updatePasswordQuery, string(publicID), hash)
	if err != nil {
		p.logger.Error("failed to update password", zap.String("public_id", string(publicID)), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *personRepo) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
