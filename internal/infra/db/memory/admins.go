package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.AdminRepository = (*AdminRepo)(nil)

type AdminRepo struct {
	mu     sync.RWMutex
	admins map[string]model.AdminPrincipal
}

func NewAdminRepo() *AdminRepo {
	return &AdminRepo{admins: map[string]model.AdminPrincipal{}}
}

func (r *AdminRepo) Save(_ context.Context, _ repository.Tx, a *model.AdminPrincipal) error {
	if a.IsZero() {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, other := range r.admins {
		if id != a.ID && strings.EqualFold(other.Username, a.Username) {
			return domain.ErrAdminExists
		}
	}
	r.admins[a.ID] = *a
	return nil
}

func (r *AdminRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.AdminPrincipal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.admins[id]
	if !ok {
		return nil, domain.ErrAdminNotFound
	}
	return &a, nil
}

func (r *AdminRepo) FindByUsername(_ context.Context, _ repository.Tx, username string) (*model.AdminPrincipal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.admins {
		if strings.EqualFold(a.Username, username) {
			cp := a
			return &cp, nil
		}
	}
	return nil, domain.ErrAdminNotFound
}

func (r *AdminRepo) List(_ context.Context, _ repository.Tx) ([]*model.AdminPrincipal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.AdminPrincipal, 0, len(r.admins))
	for _, a := range r.admins {
		cp := a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
