// Package accounts manages users: registration, admin management and login.
package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/auth"
	"github.com/nancliu/pm-agent/internal/db"
	"github.com/nancliu/pm-agent/internal/logging"
	"github.com/nancliu/pm-agent/internal/model"
)

type Store interface {
	InTx(ctx context.Context, fn func(q *db.Queries) error) error
}

type Service struct {
	store Store
	log   *logging.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

func New(store Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, log: logger, now: time.Now, newID: uuid.New}
}

type Registration struct {
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
	Role     string `json:"role" yaml:"role"`
}

type UserPatch struct {
	Username model.Field[string] `json:"username"`
	Email    model.Field[string] `json:"email"`
	Password model.Field[string] `json:"password"`
	Role     model.Field[string] `json:"role"`
	Status   model.Field[string] `json:"status"`
}

// Register creates a member account. Any role in reg is ignored.
func (s *Service) Register(ctx context.Context, reg Registration) (model.User, error) {
	reg.Role = string(model.RoleMember)
	return s.create(ctx, reg)
}

// Create adds a user with any role. Only admins may call it.
func (s *Service) Create(ctx context.Context, reg Registration, actor model.Principal) (model.User, error) {
	if actor.Role != model.RoleAdmin {
		return model.User{}, model.Forbidden("only admins can create users")
	}
	return s.create(ctx, reg)
}

// Bootstrap creates a user without an acting admin, for seeding.
func (s *Service) Bootstrap(ctx context.Context, reg Registration) (model.User, error) {
	return s.create(ctx, reg)
}

func (s *Service) create(ctx context.Context, reg Registration) (model.User, error) {
	username, err := validateUsername(reg.Username)
	if err != nil {
		return model.User{}, err
	}
	email, err := validateEmail(reg.Email)
	if err != nil {
		return model.User{}, err
	}
	if err := validatePassword(reg.Password); err != nil {
		return model.User{}, err
	}
	role := model.RoleMember
	if reg.Role != "" {
		if role, err = model.ParseRole(reg.Role); err != nil {
			return model.User{}, err
		}
	}

	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return model.User{}, err
	}

	now := s.now().UTC()
	user := model.User{
		ID:           s.newID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       model.UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.InTx(ctx, func(q *db.Queries) error {
		return q.CreateUser(ctx, user)
	})
	if err != nil {
		return model.User{}, err
	}

	s.log.Infof("user %s (%s) created", user.Username, user.Role)
	return user, nil
}

// Get returns a user to an admin or to the user themselves.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor model.Principal) (model.User, error) {
	var user model.User
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		var err error
		user, err = q.GetUser(ctx, id)
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	if actor.Role != model.RoleAdmin && actor.ID != id {
		return model.User{}, model.Forbidden("users can only view their own account")
	}
	return user, nil
}

// List returns one page of users and the total number of matches.
func (s *Service) List(ctx context.Context, filter model.UserFilter) ([]model.User, int, error) {
	if filter.Role != "" {
		role, err := model.ParseRole(filter.Role)
		if err != nil {
			return nil, 0, err
		}
		filter.Role = string(role)
	}
	if filter.Status != "" {
		status, err := model.ParseUserStatus(filter.Status)
		if err != nil {
			return nil, 0, err
		}
		filter.Status = string(status)
	}

	var (
		users []model.User
		total int
	)
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		var err error
		users, total, err = q.ListUsers(ctx, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Update changes a user's profile. Users may edit themselves; role and status
// are admin only.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch UserPatch, actor model.Principal) (model.User, error) {
	var updated model.User
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		user, err := q.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if actor.Role != model.RoleAdmin && actor.ID != id {
			return model.Forbidden("users can only edit their own account")
		}
		if actor.Role != model.RoleAdmin && (patch.Role.Set || patch.Status.Set) {
			return model.Forbidden("only admins can change role or status")
		}

		if patch.Username.Set {
			if user.Username, err = validateUsername(patch.Username.Value); err != nil {
				return err
			}
		}
		if patch.Email.Set {
			if user.Email, err = validateEmail(patch.Email.Value); err != nil {
				return err
			}
		}
		if patch.Password.Set {
			if err := validatePassword(patch.Password.Value); err != nil {
				return err
			}
			if user.PasswordHash, err = auth.HashPassword(patch.Password.Value); err != nil {
				return err
			}
		}
		if patch.Role.Set {
			if user.Role, err = model.ParseRole(patch.Role.Value); err != nil {
				return err
			}
		}
		if patch.Status.Set {
			if user.Status, err = model.ParseUserStatus(patch.Status.Value); err != nil {
				return err
			}
		}

		user.UpdatedAt = s.now().UTC()
		if err := q.UpdateUser(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return model.User{}, err
	}

	s.log.Infof("user %s updated by %s", updated.Username, actor.ID)
	return updated, nil
}

// Deactivate marks a user inactive. Admins cannot deactivate themselves.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID, actor model.Principal) error {
	if actor.Role != model.RoleAdmin {
		return model.Forbidden("only admins can deactivate users")
	}
	if actor.ID == id {
		return fmt.Errorf("%w: cannot deactivate your own account", model.ErrInvalidInput)
	}

	var username string
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		user, err := q.GetUser(ctx, id)
		if err != nil {
			return err
		}
		user.Status = model.UserInactive
		user.UpdatedAt = s.now().UTC()
		username = user.Username
		return q.UpdateUser(ctx, user)
	})
	if err != nil {
		return err
	}

	s.log.Infof("user %s deactivated by %s", username, actor.ID)
	return nil
}

// Authenticate checks a username and password and returns the active user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (model.User, error) {
	var user model.User
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		var err error
		user, err = q.GetUserByUsername(ctx, strings.TrimSpace(username))
		return err
	})
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		return model.User{}, fmt.Errorf("%w: invalid username or password", model.ErrUnauthorized)
	}
	if user.Status != model.UserActive {
		return model.User{}, fmt.Errorf("%w: account is %s", model.ErrUnauthorized, user.Status)
	}
	return user, nil
}

// Principal loads the current role of an active user.
func (s *Service) Principal(ctx context.Context, id uuid.UUID) (model.User, error) {
	var user model.User
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		var err error
		user, err = q.GetUser(ctx, id)
		return err
	})
	if err != nil {
		return model.User{}, fmt.Errorf("%w: unknown user", model.ErrUnauthorized)
	}
	if user.Status != model.UserActive {
		return model.User{}, fmt.Errorf("%w: account is %s", model.ErrUnauthorized, user.Status)
	}
	return user, nil
}

// Lookup returns the active user named username. It checks no password and
// serves local tooling that acts on behalf of a user.
func (s *Service) Lookup(ctx context.Context, username string) (model.User, error) {
	var user model.User
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		var err error
		user, err = q.GetUserByUsername(ctx, strings.TrimSpace(username))
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	if user.Status != model.UserActive {
		return model.User{}, fmt.Errorf("%w: account is %s", model.ErrUnauthorized, user.Status)
	}
	return user, nil
}

func validateUsername(value string) (string, error) {
	username := strings.TrimSpace(value)
	if n := utf8.RuneCountInString(username); n < 3 || n > 50 {
		return "", fmt.Errorf("%w: username must be 3-50 characters", model.ErrInvalidInput)
	}
	return username, nil
}

func validateEmail(value string) (string, error) {
	email := strings.TrimSpace(value)
	if len(email) > 100 {
		return "", fmt.Errorf("%w: email exceeds 100 characters", model.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", model.ErrInvalidInput, value)
	}
	return email, nil
}

func validatePassword(value string) error {
	if utf8.RuneCountInString(value) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", model.ErrInvalidInput)
	}
	// bcrypt only hashes the first 72 bytes.
	if len(value) > 72 {
		return fmt.Errorf("%w: password must be at most 72 bytes", model.ErrInvalidInput)
	}
	return nil
}
