package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mehmetcc/tenantcore/internal/config"
	"github.com/mehmetcc/tenantcore/internal/password"
	"github.com/mehmetcc/tenantcore/internal/person"
	"github.com/mehmetcc/tenantcore/internal/token"
	"github.com/mehmetcc/tenantcore/pkg/id"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "auth-test-secret-0123456789abcdefghij"

var testParams = password.Params{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// stubRepo is a PersonRepo whose records and failures tests control directly.
type stubRepo struct {
	mu        sync.Mutex
	records   map[id.PublicID]*person.Person
	findErr   error
	updateErr error
	updates   int
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: make(map[id.PublicID]*person.Person)}
}

func (s *stubRepo) add(p *person.Person) *person.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.PublicID == "" {
		p.PublicID = id.NewPublicID()
	}
	p.Email = person.NormalizeEmail(p.Email)
	s.records[p.PublicID] = p
	return p
}

func (s *stubRepo) get(publicID id.PublicID) *person.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.records[publicID]
	return &cp
}

func (s *stubRepo) Create(ctx context.Context, dto *person.PersonDTO) (id.PublicID, error) {
	p := s.add(&person.Person{
		Email:    dto.Email,
		Username: dto.Username,
		Password: dto.Password,
		Role:     dto.Role,
		IsActive: true,
	})
	return p.PublicID, nil
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*person.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, p := range s.records {
		if p.Email == person.NormalizeEmail(email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) FindByPublicID(ctx context.Context, publicID id.PublicID) (*person.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	p, ok := s.records[publicID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *stubRepo) UpdatePassword(ctx context.Context, publicID id.PublicID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	p, ok := s.records[publicID]
	if !ok {
		return person.ErrNotFound
	}
	p.Password = hash
	return nil
}

func (s *stubRepo) Ping(ctx context.Context) error { return nil }

// spyHasher counts Verify calls on top of a real hasher.
type spyHasher struct {
	password.Hasher
	mu       sync.Mutex
	verifies int
}

func (s *spyHasher) Verify(plaintext, encoded string) bool {
	s.mu.Lock()
	s.verifies++
	s.mu.Unlock()
	return s.Hasher.Verify(plaintext, encoded)
}

func (s *spyHasher) verifyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifies
}

func newSpyHasher(t *testing.T) *spyHasher {
	t.Helper()
	h, err := password.NewHasher(testParams)
	require.NoError(t, err)
	return &spyHasher{Hasher: h}
}

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:     testSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		JWTAlg:     "HS256",
	}
}

func newCodecs(t *testing.T, opts ...token.Option) (token.Codec, token.Codec) {
	t.Helper()
	access, err := token.NewCodec(testJWTConfig(), token.ClassAccess, opts...)
	require.NoError(t, err)
	refresh, err := token.NewCodec(testJWTConfig(), token.ClassRefresh, opts...)
	require.NoError(t, err)
	return access, refresh
}

type fixture struct {
	repo    *stubRepo
	hasher  *spyHasher
	access  token.Codec
	refresh token.Codec
	service AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newStubRepo()
	hasher := newSpyHasher(t)
	access, refresh := newCodecs(t)
	svc, err := NewAuthenticationService(repo, hasher, access, refresh, zap.NewNop())
	require.NoError(t, err)
	return &fixture{repo: repo, hasher: hasher, access: access, refresh: refresh, service: svc}
}

// seed stores a person whose password is plaintext hashed with the test hasher.
func (f *fixture) seed(t *testing.T, email, plaintext string, role person.Role) *person.Person {
	t.Helper()
	hashed, err := f.hasher.Hash(plaintext)
	require.NoError(t, err)
	return f.repo.add(&person.Person{
		Email:    email,
		Username: email,
		Password: hashed,
		Role:     role,
		IsActive: true,
	})
}
