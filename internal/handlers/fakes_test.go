package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/civictrack/apiserver/internal/store"
	"github.com/civictrack/apiserver/types"
)

type memUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int]types.User)}
}

func (r *memUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) UpdateRole(_ context.Context, id int, role types.Role) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.Role = role
	r.users[id] = user
	return user, nil
}

func (r *memUserRepo) List(_ context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memComplaintRepo struct {
	mu         sync.Mutex
	nextID     int
	clock      time.Time
	complaints map[int]types.Complaint
	users      *memUserRepo
}

func newMemComplaintRepo(users *memUserRepo) *memComplaintRepo {
	return &memComplaintRepo{
		complaints: make(map[int]types.Complaint),
		clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		users:      users,
	}
}

func (r *memComplaintRepo) withAuthor(c types.Complaint) types.Complaint {
	if user, err := r.users.GetByID(context.Background(), c.UserID); err == nil {
		c.AuthorEmail = user.Email
	}
	return c
}

func (r *memComplaintRepo) List(_ context.Context, filter types.ComplaintFilter) ([]types.Complaint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := []types.Complaint{}
	for _, c := range r.complaints {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Description), search) &&
			!strings.Contains(strings.ToLower(c.Location), search) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, r.withAuthor(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Upvotes != out[j].Upvotes {
			return out[i].Upvotes > out[j].Upvotes
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *memComplaintRepo) Get(_ context.Context, id int) (types.Complaint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.complaints[id]
	if !ok {
		return types.Complaint{}, store.ErrNotFound
	}
	return r.withAuthor(c), nil
}

func (r *memComplaintRepo) Create(_ context.Context, c types.Complaint) (types.Complaint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.clock = r.clock.Add(time.Second)
	c.ID = r.nextID
	c.CreatedAt = r.clock
	c.UpdatedAt = r.clock
	r.complaints[c.ID] = c
	return r.withAuthor(c), nil
}

func (r *memComplaintRepo) IncrementUpvotes(_ context.Context, id int) (types.Complaint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.complaints[id]
	if !ok {
		return types.Complaint{}, store.ErrNotFound
	}
	c.Upvotes++
	r.complaints[id] = c
	return r.withAuthor(c), nil
}

func (r *memComplaintRepo) UpdateStatus(_ context.Context, id int, status types.Status) (types.Complaint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.complaints[id]
	if !ok {
		return types.Complaint{}, store.ErrNotFound
	}
	c.Status = status
	r.complaints[id] = c
	return r.withAuthor(c), nil
}

func (r *memComplaintRepo) Delete(_ context.Context, id int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.complaints[id]
	if !ok {
		return "", store.ErrNotFound
	}
	delete(r.complaints, id)
	return c.ImageKey, nil
}

func (r *memComplaintRepo) stored(id int) (types.Complaint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.complaints[id]
	return c, ok
}
