// Package users stores accounts, their roles and study groups.
package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/apperr"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// hashCost is lowered by tests.
var hashCost = 12

// ErrInvalidCredentials is returned by Authenticate for an unknown user or a
// wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

type User struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Role     rbac.Role `json:"role"`
	Group    string    `json:"group,omitempty"`
}

func (u User) Principal() rbac.Principal { return rbac.Principal{ID: u.ID, Role: u.Role} }

// Row is one entry of a bulk import. An empty Password keeps the stored hash
// of an existing user; new users must have one.
type Row struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Group    string `json:"group,omitempty"`
	Password string `json:"password,omitempty"`
}

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepo(d *sql.DB) *Repo { return &Repo{db: d, now: time.Now} }

// HashPassword returns a bcrypt hash suitable for users.password_hash.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), hashCost)
	return string(b), err
}

func (r *Repo) Authenticate(ctx context.Context, username, password string) (User, error) {
	var (
		u    User
		hash string
		role string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.role, COALESCE(g.name, ''), u.password_hash
		FROM users u LEFT JOIN user_groups g ON u.group_id = g.id
		WHERE u.username = $1`, strings.TrimSpace(username)).
		Scan(&u.ID, &u.Username, &role, &u.Group, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, apperr.Storage("authenticate", err)
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	u.Role = rbac.Role(role)
	return u, nil
}

// Get resolves a user by id.
func (r *Repo) Get(ctx context.Context, id int64) (User, error) {
	var u User
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.role, COALESCE(g.name, '')
		FROM users u LEFT JOIN user_groups g ON u.group_id = g.id
		WHERE u.id = $1`, id).Scan(&u.ID, &u.Username, &role, &u.Group)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.NotFoundf("user %d not found", id)
	}
	if err != nil {
		return User{}, apperr.Storage("get user", err)
	}
	u.Role = rbac.Role(role)
	return u, nil
}

// List returns users ordered by username, optionally filtered by role.
func (r *Repo) List(ctx context.Context, role rbac.Role) ([]User, error) {
	q := `SELECT u.id, u.username, u.role, COALESCE(g.name, '')
		FROM users u LEFT JOIN user_groups g ON u.group_id = g.id`
	var args []any
	if role != "" {
		q += ` WHERE u.role = $1`
		args = append(args, string(role))
	}
	q += ` ORDER BY u.username`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Storage("list users", err)
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &role, &u.Group); err != nil {
			return nil, apperr.Storage("list users", err)
		}
		u.Role = rbac.Role(role)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list users", err)
	}
	return out, nil
}

// EnsureAdmin creates the bootstrap admin, or resets its role and password
// hash when the account already exists.
func (r *Repo) EnsureAdmin(ctx context.Context, username, passHash string) error {
	username = strings.TrimSpace(username)
	if username == "" || passHash == "" {
		return apperr.Validationf("admin username and password hash are required")
	}
	if _, err := bcrypt.Cost([]byte(passHash)); err != nil {
		return apperr.Validationf("admin password hash is not a bcrypt hash")
	}
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET role = $1, password_hash = $2 WHERE username = $3`,
			string(rbac.RoleAdmin), passHash, username)
		if err != nil {
			return apperr.Storage("ensure admin", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (username, password_hash, role, created_at) VALUES ($1,$2,$3,$4)`,
			username, passHash, string(rbac.RoleAdmin), r.now().Unix())
		return apperr.Storage("ensure admin", err)
	})
}

// BulkUpsert inserts or updates users by username in one transaction.
// Groups are created on first use.
func (r *Repo) BulkUpsert(ctx context.Context, rows []Row) (inserted, updated int, err error) {
	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		groups := map[string]int64{}
		for i, row := range rows {
			row.Username = strings.TrimSpace(row.Username)
			row.Group = strings.TrimSpace(row.Group)
			role := rbac.Role(strings.ToLower(strings.TrimSpace(row.Role)))
			if role == "" {
				role = rbac.RoleStudent
			}
			if row.Username == "" {
				return apperr.Validationf("row %d: username is required", i+1)
			}
			if !role.Valid() {
				return apperr.Validationf("row %d: invalid role %q", i+1, row.Role)
			}

			var groupID sql.NullInt64
			if row.Group != "" {
				id, err := groupIDFor(ctx, tx, groups, row.Group)
				if err != nil {
					return err
				}
				groupID = sql.NullInt64{Int64: id, Valid: true}
			}

			var hash string
			if row.Password != "" {
				h, err := HashPassword(row.Password)
				if err != nil {
					return err
				}
				hash = h
			}

			var id int64
			err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE username = $1`, row.Username).Scan(&id)
			switch {
			case err == nil:
				if hash != "" {
					_, err = tx.ExecContext(ctx, `UPDATE users SET role=$1, group_id=$2, password_hash=$3 WHERE id=$4`,
						string(role), groupID, hash, id)
				} else {
					_, err = tx.ExecContext(ctx, `UPDATE users SET role=$1, group_id=$2 WHERE id=$3`,
						string(role), groupID, id)
				}
				if err != nil {
					return apperr.Storage("update user", err)
				}
				updated++
			case errors.Is(err, sql.ErrNoRows):
				if hash == "" {
					return apperr.Validationf("row %d: password required for new user %s", i+1, row.Username)
				}
				_, err = tx.ExecContext(ctx,
					`INSERT INTO users (username, password_hash, role, group_id, created_at) VALUES ($1,$2,$3,$4,$5)`,
					row.Username, hash, string(role), groupID, r.now().Unix())
				if err != nil {
					return apperr.Storage("insert user", err)
				}
				inserted++
			default:
				return apperr.Storage("lookup user", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

func groupIDFor(ctx context.Context, tx *sql.Tx, seen map[string]int64, name string) (int64, error) {
	if id, ok := seen[name]; ok {
		return id, nil
	}
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM user_groups WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, `INSERT INTO user_groups (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	}
	if err != nil {
		return 0, apperr.Storage("resolve group", err)
	}
	seen[name] = id
	return id, nil
}

func (r *Repo) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if newPassword == "" {
		return apperr.Validationf("new password required")
	}
	var stored string
	err := r.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFoundf("user not found")
	}
	if err != nil {
		return apperr.Storage("change password", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(oldPassword)) != nil {
		return apperr.Forbidden("incorrect old password")
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, userID); err != nil {
		return apperr.Storage("change password", err)
	}
	return nil
}

// SetRole changes a user's role. The last admin cannot be demoted.
func (r *Repo) SetRole(ctx context.Context, id int64, role rbac.Role) error {
	if !role.Valid() {
		return apperr.Validationf("invalid role %q", role)
	}
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var cur string
		err := tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFoundf("user %d not found", id)
		}
		if err != nil {
			return apperr.Storage("set role", err)
		}
		if rbac.Role(cur) == rbac.RoleAdmin && role != rbac.RoleAdmin {
			var admins int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE role = $1`, string(rbac.RoleAdmin)).Scan(&admins); err != nil {
				return apperr.Storage("set role", err)
			}
			if admins <= 1 {
				return apperr.Conflictf("cannot demote the last admin")
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), id)
		return apperr.Storage("set role", err)
	})
}
