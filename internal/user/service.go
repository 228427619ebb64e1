package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	clientrepo "github.com/ovaphlow/pitchfork/service-client-bot/internal/client/repo"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/phone"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/user/entity"
)

// UserStore is the subset of repo.UserRepo the service needs.
type UserStore interface {
	Get(ctx context.Context, id int64) (*entity.User, error)
	Register(ctx context.Context, id int64, role entity.Role) error
	RegisterAdmin(ctx context.Context, id int64) error
	ListAdminIDs(ctx context.Context) ([]int64, error)
}

// ClientStore is the subset of clientrepo.ClientRepo the service needs.
type ClientStore interface {
	Create(ctx context.Context, id int64, phone string) error
	Exists(ctx context.Context, id int64) (bool, error)
	FindByPhone(ctx context.Context, phone string) (int64, error)
	UpdatePhone(ctx context.Context, id int64, phone string) error
}

var (
	ErrNotFound      = errors.New("client not found")
	ErrPhoneTaken    = clientrepo.ErrPhoneTaken
	ErrProfileExists = clientrepo.ErrProfileExists
)

// Service owns user registration, roles and client profiles.
type Service struct {
	users   UserStore
	clients ClientStore
	roles   RoleResolver
	log     *zap.SugaredLogger
}

func NewService(users UserStore, clients ClientStore, roles RoleResolver, log *zap.SugaredLogger) *Service {
	return &Service{users: users, clients: clients, roles: roles, log: log}
}

// Enroll returns the user's role, registering the user on first contact.
// The allow-list is consulted only when no role is stored yet.
func (s *Service) Enroll(ctx context.Context, id int64) (role entity.Role, isNew bool, err error) {
	u, err := s.users.Get(ctx, id)
	switch {
	case err == nil && u.RoleValue() != entity.RoleNone:
		return u.RoleValue(), false, nil
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		isNew = true
	default:
		return entity.RoleNone, false, fmt.Errorf("load user %d: %w", id, err)
	}

	role = s.roles.Resolve(id)
	if err := s.users.Register(ctx, id, role); err != nil {
		return entity.RoleNone, false, fmt.Errorf("register user %d: %w", id, err)
	}
	if role == entity.RoleAdmin {
		if err := s.users.RegisterAdmin(ctx, id); err != nil {
			return entity.RoleNone, false, fmt.Errorf("register admin %d: %w", id, err)
		}
	}
	s.log.Infow("user registered", "user_id", id, "role", role)
	return role, isNew, nil
}

// Role returns the stored role, RoleNone for unknown users or on failure.
func (s *Service) Role(ctx context.Context, id int64) entity.Role {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warnw("load user role failed", "user_id", id, "err", err)
		}
		return entity.RoleNone
	}
	return u.RoleValue()
}

// HasProfile reports whether the user has a client profile; false on failure.
func (s *Service) HasProfile(ctx context.Context, id int64) bool {
	ok, err := s.clients.Exists(ctx, id)
	if err != nil {
		s.log.Warnw("check client profile failed", "user_id", id, "err", err)
		return false
	}
	return ok
}

// CreateProfile stores the confirmed phone of a client. ErrProfileExists
// means the user registered earlier, possibly with another number.
func (s *Service) CreateProfile(ctx context.Context, id int64, number string) error {
	if !phone.Valid(number) {
		return phone.ErrInvalid
	}
	err := s.clients.Create(ctx, id, number)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, clientrepo.ErrPhoneTaken):
		return ErrPhoneTaken
	case errors.Is(err, clientrepo.ErrProfileExists):
		return ErrProfileExists
	default:
		return fmt.Errorf("create profile %d: %w", id, err)
	}
}

// FindClientByPhone resolves a phone to its owner or ErrNotFound.
func (s *Service) FindClientByPhone(ctx context.Context, number string) (int64, error) {
	id, err := s.clients.FindByPhone(ctx, number)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find client by phone: %w", err)
	}
	return id, nil
}

// ChangePhone replaces a client's phone. The old value is not retained.
func (s *Service) ChangePhone(ctx context.Context, id int64, number string) error {
	if !phone.Valid(number) {
		return phone.ErrInvalid
	}
	err := s.clients.UpdatePhone(ctx, id, number)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, clientrepo.ErrPhoneTaken):
		return ErrPhoneTaken
	default:
		return fmt.Errorf("change phone %d: %w", id, err)
	}
}

// AdminIDs lists the admin registry; empty on failure.
func (s *Service) AdminIDs(ctx context.Context) []int64 {
	ids, err := s.users.ListAdminIDs(ctx)
	if err != nil {
		s.log.Errorw("list admins failed", "err", err)
		return []int64{}
	}
	return ids
}
