package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jobman-auth/internal/domain"
	"github.com/stretchr/testify/mock"
)

// memoryDirectory is an in-memory UserDirectory. Reset-token lookups honour
// expiry against now.
type memoryDirectory struct {
	mu     sync.Mutex
	users  map[int64]*domain.User
	nextID int64
	now    func() time.Time
	err    error

	resetTokenWrites int
	resetLookups     int
}

func newMemoryDirectory(now func() time.Time) *memoryDirectory {
	return &memoryDirectory{users: map[int64]*domain.User{}, now: now}
}

func (d *memoryDirectory) find(match func(*domain.User) bool) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	for _, u := range d.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (d *memoryDirectory) FindByID(_ context.Context, id int64) (*domain.User, error) {
	return d.find(func(u *domain.User) bool { return u.ID == id })
}

func (d *memoryDirectory) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return d.find(func(u *domain.User) bool { return u.Email == email })
}

func (d *memoryDirectory) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return d.find(func(u *domain.User) bool { return u.Username == username })
}

func (d *memoryDirectory) FindByUsernameOrEmail(_ context.Context, username, email string) (*domain.User, error) {
	return d.find(func(u *domain.User) bool { return u.Username == username || u.Email == email })
}

func (d *memoryDirectory) FindByVerificationToken(_ context.Context, token string) (*domain.User, error) {
	return d.find(func(u *domain.User) bool { return token != "" && u.EmailVerificationToken == token })
}

func (d *memoryDirectory) FindByResetToken(_ context.Context, token string) (*domain.User, error) {
	d.mu.Lock()
	d.resetLookups++
	d.mu.Unlock()
	now := d.now()
	return d.find(func(u *domain.User) bool {
		return token != "" && u.PasswordResetToken == token &&
			u.PasswordResetExpiresAt != nil && u.PasswordResetExpiresAt.After(now)
	})
}

func (d *memoryDirectory) Create(_ context.Context, u *domain.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	for _, existing := range d.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return domain.ErrDuplicateIdentity
		}
	}
	d.nextID++
	u.ID = d.nextID
	c := *u
	d.users[u.ID] = &c
	return nil
}

func (d *memoryDirectory) update(id int64, fn func(*domain.User)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	u, ok := d.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(u)
	return nil
}

func (d *memoryDirectory) UpdatePassword(_ context.Context, id int64, hash string) error {
	return d.update(id, func(u *domain.User) {
		u.PasswordHash = hash
		u.PasswordResetToken = ""
		u.PasswordResetExpiresAt = nil
	})
}

func (d *memoryDirectory) UpdateVerificationField(_ context.Context, id int64, verified bool, token string) error {
	return d.update(id, func(u *domain.User) {
		u.EmailVerified = verified
		u.EmailVerificationToken = token
	})
}

func (d *memoryDirectory) UpdateResetToken(_ context.Context, id int64, token string, expiresAt time.Time) error {
	return d.update(id, func(u *domain.User) {
		d.resetTokenWrites++
		u.PasswordResetToken = token
		u.PasswordResetExpiresAt = &expiresAt
	})
}

func (d *memoryDirectory) get(id int64) domain.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.users[id]
}

// recordingPublisher keeps every envelope it is handed.
type recordingPublisher struct {
	mu        sync.Mutex
	envelopes []domain.NotificationEnvelope
	keys      []string
}

func (p *recordingPublisher) PublishDirect(_ context.Context, exchange, routingKey string, body []byte, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var env domain.NotificationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		panic(err)
	}
	p.envelopes = append(p.envelopes, env)
	p.keys = append(p.keys, exchange+"/"+routingKey)
}

func (p *recordingPublisher) last() domain.NotificationEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.envelopes[len(p.envelopes)-1]
}

// droppingPublisher stands in for a broker that is down: the publish is
// attempted and silently lost.
type droppingPublisher struct{ calls int }

func (p *droppingPublisher) PublishDirect(context.Context, string, string, []byte, string) {
	p.calls++
}

type mockPictures struct{ mock.Mock }

func (m *mockPictures) UploadProfilePicture(ctx context.Context, publicID, data string) (string, error) {
	args := m.Called(ctx, publicID, data)
	return args.String(0), args.Error(1)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(id int64, email, username string) (string, error) {
	args := m.Called(id, email, username)
	return args.String(0), args.Error(1)
}

var errBoom = errors.New("boom")
