package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/model"
)

const userColumns = "id, username, email, password_hash, role, status, created_at, updated_at"

func (q *Queries) CreateUser(ctx context.Context, user model.User) error {
	_, err := q.exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID.String(), user.Username, user.Email, user.PasswordHash,
		string(user.Role), string(user.Status), formatTime(user.CreatedAt), formatTime(user.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (q *Queries) UpdateUser(ctx context.Context, user model.User) error {
	result, err := q.exec(ctx, `UPDATE users
		SET username = ?, email = ?, password_hash = ?, role = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		user.Username, user.Email, user.PasswordHash, string(user.Role), string(user.Status),
		formatTime(user.UpdatedAt), user.ID.String())
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectAffected(result, "update user")
}

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	user, err := scanUser(row)
	if err != nil {
		return model.User{}, notFound(err, "get user")
	}
	return user, nil
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if err != nil {
		return model.User{}, notFound(err, "get user by username")
	}
	return user, nil
}

func (q *Queries) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id.String()).Scan(&n); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}

func (q *Queries) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListUsers returns one page of users matching filter and the total number of
// matches.
func (q *Queries) ListUsers(ctx context.Context, filter model.UserFilter) ([]model.User, int, error) {
	var (
		clauses []string
		args    []any
	)
	if role := strings.TrimSpace(filter.Role); role != "" {
		clauses = append(clauses, "role = ?")
		args = append(args, role)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		clauses = append(clauses, `(LOWER(username) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`)
		pattern := "%" + likeEscaper.Replace(search) + "%"
		args = append(args, pattern, pattern)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	limit, offset := model.NormalizePage(filter.Limit, filter.Offset)
	rows, err := q.query(ctx, `SELECT `+userColumns+` FROM users`+where+` ORDER BY created_at, username LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		user                 model.User
		id, role, status     string
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &user.Username, &user.Email, &user.PasswordHash, &role, &status, &createdAt, &updatedAt); err != nil {
		return model.User{}, err
	}

	var err error
	if user.ID, err = uuid.Parse(id); err != nil {
		return model.User{}, fmt.Errorf("parse user id: %w", err)
	}
	user.Role = model.Role(role)
	user.Status = model.UserStatus(status)
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.User{}, err
	}
	return user, nil
}
