package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"spendflow/internal/model"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	stored, ok := r.users[parsed]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *stored
	return &out, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.users {
		if stored.Email == email {
			out := *stored
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUserRepo) List(_ context.Context, _, _ int) ([]model.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.User
	for _, stored := range r.users {
		out = append(out, *stored)
	}
	return out, int64(len(out)), nil
}

func (r *memUserRepo) Update(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	parsed, err := uuid.Parse(id)
	if err != nil {
		return gorm.ErrRecordNotFound
	}
	delete(r.users, parsed)
	return nil
}

func TestCreateUser(t *testing.T) {
	repo := newMemUserRepo()
	audits := newMemAuditRepo()
	svc := NewUserService(repo, audits, nil)
	ctx := context.Background()

	t.Run("hashes the password", func(t *testing.T) {
		resp, err := svc.CreateUser(ctx, CreateUserRequest{
			Name:     "Alice",
			Email:    "alice@example.com",
			Password: "secret123",
			Role:     model.RoleUser,
		})
		require.NoError(t, err)
		assert.Equal(t, model.RoleUser, resp.Role)

		stored, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.NotEqual(t, "secret123", stored.Password)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret123")))
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := svc.CreateUser(ctx, CreateUserRequest{
			Name:     "Alice Again",
			Email:    "alice@example.com",
			Password: "secret123",
			Role:     model.RoleUser,
		})
		assert.Error(t, err)
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		_, err := svc.CreateUser(ctx, CreateUserRequest{
			Name:     "Bob",
			Email:    "bob@example.com",
			Password: "secret123",
			Role:     "superuser",
		})
		assert.Error(t, err)
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		_, err := svc.CreateUser(ctx, CreateUserRequest{
			Name:     "Bob",
			Email:    "not-an-email",
			Password: "secret123",
			Role:     model.RoleUser,
		})
		assert.Error(t, err)
	})
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newMemUserRepo()
	svc := NewUserService(repo, newMemAuditRepo(), nil)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserRequest{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "secret123",
		Role:     model.RoleUser,
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginUserRequest{Email: "alice@example.com", Password: "wrong"})
	assert.Error(t, err)

	_, err = svc.Login(ctx, LoginUserRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.Error(t, err)
}

func TestPromoteToAdmin(t *testing.T) {
	repo := newMemUserRepo()
	audits := newMemAuditRepo()
	svc := NewUserService(repo, audits, nil)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateUserRequest{
		Name:     "Carol",
		Email:    "carol@example.com",
		Password: "secret123",
		Role:     model.RoleApprover,
	})
	require.NoError(t, err)

	actor := uuid.NewString()

	t.Run("elevates and audits", func(t *testing.T) {
		resp, err := svc.PromoteToAdmin(ctx, actor, PromoteUserRequest{Email: "carol@example.com"})
		require.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, resp.Role)
		assert.Equal(t, created.ID, resp.ID)
		assert.Equal(t, []string{model.ActionPromoteUser}, audits.actions())
	})

	t.Run("already admin", func(t *testing.T) {
		_, err := svc.PromoteToAdmin(ctx, actor, PromoteUserRequest{Email: "carol@example.com"})
		assert.Error(t, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.PromoteToAdmin(ctx, actor, PromoteUserRequest{Email: "nobody@example.com"})
		assert.Error(t, err)
	})
}
