package person

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mehmetcc/tenantcore/pkg/id"
	"go.uber.org/zap"
)

// memoryRepo is a PersonRepo backed by a map. Used with STORE_DRIVER=memory
// for local runs and by the HTTP tests.
type memoryRepo struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[id.PublicID]*Person
	byEmail map[string]id.PublicID
	logger  *zap.Logger
}

func NewMemoryRepo(logger *zap.Logger) PersonRepo {
	return &memoryRepo{
		byID:    make(map[id.PublicID]*Person),
		byEmail: make(map[string]id.PublicID),
		logger:  logger,
	}
}

func (m *memoryRepo) Create(ctx context.Context, dto *PersonDTO) (id.PublicID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	email := NormalizeEmail(dto.Email)
	username := strings.TrimSpace(dto.Username)
	role := dto.Role
	if role == "" {
		role = RoleOwner
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[email]; ok {
		return "", ErrDuplicateEmail
	}
	for _, p := range m.byID {
		if p.Username == username {
			return "", ErrDuplicateUsername
		}
	}

	m.nextID++
	now := time.Now().UTC()
	rec := &Person{
		ID:        m.nextID,
		PublicID:  id.NewPublicID(),
		Email:     email,
		Username:  username,
		Password:  dto.Password,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.byID[rec.PublicID] = rec
	m.byEmail[email] = rec.PublicID

	m.logger.Debug("person created", zap.Int64("id", rec.ID), zap.String("public_id", string(rec.PublicID)))
	return rec.PublicID, nil
}

func (m *memoryRepo) FindByEmail(ctx context.Context, email string) (*Person, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	pid, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return m.copyOf(pid), nil
}

func (m *memoryRepo) FindByPublicID(ctx context.Context, publicID id.PublicID) (*Person, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyOf(publicID), nil
}

func (m *memoryRepo) UpdatePassword(ctx context.Context, publicID id.PublicID, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[publicID]
	if !ok || rec.IsDeleted {
		return ErrNotFound
	}
	rec.Password = hash
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

// copyOf must be called with mu held. Callers get a snapshot so they
// cannot mutate the stored record.
func (m *memoryRepo) copyOf(publicID id.PublicID) *Person {
	rec, ok := m.byID[publicID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}
