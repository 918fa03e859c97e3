package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"agenda.org/internal/event"
	"agenda.org/internal/roles"
)

func (s *Store) GetUser(ctx context.Context, id string) (*event.User, error) {
	u, err := s.scanUser(s.db.QueryRowContext(ctx, `
		select id, coalesce(username,''), coalesce(name,''), coalesce(email,''), role, coalesce(image,''), coalesce(description,'')
		from users where id=$1
	`, id))
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) UpsertUser(ctx context.Context, u *event.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, username, name, email, role, image, description, created_at, updated_at)
		values ($1, nullif($2,''), $3, $4, $5, $6, $7, now(), now())
		on conflict (id) do update set
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			image = excluded.image,
			updated_at = now()
	`, u.ID, u.Username, u.Name, u.Email, string(u.Role), u.Image, u.Description)
	return err
}

func (s *Store) UpdateProfile(ctx context.Context, id, username, description, image string) (*event.User, error) {
	res, err := s.db.ExecContext(ctx, `
		update users set
			username = nullif($2,''),
			description = $3,
			image = $4,
			updated_at = now()
		where id=$1
	`, id, username, description, image)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, event.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *Store) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from users where lower(username) = lower($1)
	`, username).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]event.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, coalesce(username,''), coalesce(name,''), coalesce(email,''), role, coalesce(image,''), coalesce(description,'')
		from users order by created_at asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *Store) CredentialByEmail(ctx context.Context, email string) (string, string, error) {
	var userID, hash string
	err := s.db.QueryRowContext(ctx, `
		select user_id, password_hash from credentials where lower(email) = lower($1)
	`, strings.TrimSpace(email)).Scan(&userID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", event.ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return userID, hash, nil
}

// IsAdmin and IsOrganizationMember back role resolution at login.

func (s *Store) IsAdmin(ctx context.Context, email string) (bool, error) {
	return s.allowlisted(ctx, `select count(*) from admin_allowlist where lower(email) = lower($1)`, email)
}

func (s *Store) IsOrganizationMember(ctx context.Context, email string) (bool, error) {
	return s.allowlisted(ctx, `select count(*) from org_member_allowlist where lower(email) = lower($1)`, email)
}

func (s *Store) allowlisted(ctx context.Context, query, email string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, strings.TrimSpace(email)).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (*event.User, error) {
	u := &event.User{}
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &role, &u.Image, &u.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, event.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = roles.Role(role)
	return u, nil
}
