package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evikzub/CVTransformer/internal/domain"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
)

// UserRepository is an in-process implementation of
// repository.UserRepository. A single mutex guards every operation, which
// also makes the first-user check and the insert atomic.
type UserRepository struct {
	mu       sync.Mutex
	byID     map[string]*domain.User
	byRemote map[int64]string
	now      func() time.Time
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:     make(map[string]*domain.User),
		byRemote: make(map[int64]string),
		now:      time.Now,
	}
}

// Create inserts a new user, making it admin when the store is empty.
func (r *UserRepository) Create(_ context.Context, nu domain.NewUser) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byRemote[nu.RemoteID]; exists {
		return nil, apperrors.AlreadyExists("user", "remote_id", strconv.FormatInt(nu.RemoteID, 10))
	}

	u := &domain.User{
		ID:        uuid.New().String(),
		RemoteID:  nu.RemoteID,
		Username:  nu.Username,
		Profile:   copyProfile(nu.Profile),
		Role:      domain.RoleUser,
		CreatedAt: r.now().UTC(),
	}
	if len(r.byID) == 0 {
		u.Role = domain.RoleAdmin
	}

	r.byID[u.ID] = u
	r.byRemote[u.RemoteID] = u.ID
	return clone(u), nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	return clone(u), nil
}

// GetByRemoteID retrieves a user by remote identity.
func (r *UserRepository) GetByRemoteID(_ context.Context, remoteID int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byRemote[remoteID]
	if !ok {
		return nil, apperrors.NotFound("user", strconv.FormatInt(remoteID, 10))
	}
	return clone(r.byID[id]), nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Username == username {
			return clone(u), nil
		}
	}
	return nil, apperrors.NotFound("user", username)
}

// TouchLastLogin sets the last-login timestamp.
func (r *UserRepository) TouchLastLogin(_ context.Context, id string) error {
	return r.update(id, func(u *domain.User) {
		now := r.now().UTC()
		u.LastLogin = &now
	})
}

// IncrementConversionCount adds one to the conversion counter.
func (r *UserRepository) IncrementConversionCount(_ context.Context, id string) error {
	return r.update(id, func(u *domain.User) {
		u.ConversionCount++
	})
}

// SetRole changes a user's role.
func (r *UserRepository) SetRole(_ context.Context, id, role string) error {
	if !domain.IsValidRole(role) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid role %q, must be one of: %s", role, strings.Join(domain.ValidRoles(), ", ")))
	}
	return r.update(id, func(u *domain.User) {
		u.Role = role
	})
}

// ListAll returns all users, newest first. Users created at the same instant
// are ordered by ID.
func (r *UserRepository) ListAll(_ context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]*domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, clone(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// Delete removes a user.
func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return apperrors.NotFound("user", id)
	}
	delete(r.byRemote, u.RemoteID)
	delete(r.byID, id)
	return nil
}

func (r *UserRepository) update(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return apperrors.NotFound("user", id)
	}
	fn(u)
	return nil
}

func clone(u *domain.User) *domain.User {
	c := *u
	c.Profile = copyProfile(u.Profile)
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

func copyProfile(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
