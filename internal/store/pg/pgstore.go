package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"agenda.org/internal/event"
	"agenda.org/internal/ids"
	"agenda.org/internal/recurrence"
	"agenda.org/internal/roles"
)

// Store implements the event and user persistence boundaries on PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ event.Store     = (*Store)(nil)
	_ event.UserStore = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool (used by tests with sqlmock).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// SaveEvent upserts the event and replaces its owner set, tag set and date
// stamps inside one transaction. A reader at read-committed isolation sees
// either the previous complete state or the new complete state, never an
// event with missing stamps or half a tag set.
func (s *Store) SaveEvent(ctx context.Context, ev *event.Event, stamps []recurrence.Interval) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range ev.Tags {
		if _, err := tx.ExecContext(ctx, `
			insert into tags(name, color) values ($1, $2)
			on conflict (name) do nothing
		`, name, event.DefaultTagColor); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		insert into events(id, name, description, image, location, visibility, link_visibility, rrule, short_link, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())
		on conflict (id) do update set
			name = excluded.name,
			description = excluded.description,
			image = excluded.image,
			location = excluded.location,
			visibility = excluded.visibility,
			link_visibility = excluded.link_visibility,
			rrule = excluded.rrule,
			short_link = excluded.short_link,
			updated_at = now()
	`, ev.ID, ev.Name, ev.Description, ev.Image, ev.Location,
		string(ev.Visibility), string(ev.LinkVisibility), ev.RRule, ev.ShortLink); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from event_owners where event_id=$1`, ev.ID); err != nil {
		return err
	}
	for _, ownerID := range ev.OwnerIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into event_owners(event_id, user_id) values ($1,$2)
		`, ev.ID, ownerID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `delete from event_tags where event_id=$1`, ev.ID); err != nil {
		return err
	}
	for _, name := range ev.Tags {
		if _, err := tx.ExecContext(ctx, `
			insert into event_tags(event_id, tag_name) values ($1,$2)
		`, ev.ID, name); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `delete from date_stamps where event_id=$1`, ev.ID); err != nil {
		return err
	}
	for _, iv := range stamps {
		if _, err := tx.ExecContext(ctx, `
			insert into date_stamps(id, event_id, start_at, end_at) values ($1,$2,$3,$4)
		`, ids.New(), ev.ID, iv.Start.UTC(), iv.End.UTC()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	ev := &event.Event{}
	var (
		visibility     string
		linkVisibility string
		image          sql.NullString
		rrule          sql.NullString
		shortLink      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, image, location, visibility, link_visibility, rrule, short_link, created_at, updated_at
		from events where id=$1
	`, id).Scan(&ev.ID, &ev.Name, &ev.Description, &image, &ev.Location,
		&visibility, &linkVisibility, &rrule, &shortLink, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, event.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ev.Image = image.String
	ev.RRule = rrule.String
	ev.ShortLink = shortLink.String
	ev.Visibility = roles.Role(visibility)
	ev.LinkVisibility = roles.Role(linkVisibility)

	if err := s.loadAssociations(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *Store) loadAssociations(ctx context.Context, ev *event.Event) error {
	owners, err := s.stringColumn(ctx, `select user_id from event_owners where event_id=$1 order by user_id`, ev.ID)
	if err != nil {
		return err
	}
	ev.OwnerIDs = owners

	tags, err := s.stringColumn(ctx, `select tag_name from event_tags where event_id=$1 order by tag_name`, ev.ID)
	if err != nil {
		return err
	}
	ev.Tags = tags

	confirmed, err := s.stringColumn(ctx, `select user_id from event_confirmations where event_id=$1 order by user_id`, ev.ID)
	if err != nil {
		return err
	}
	ev.ConfirmedIDs = confirmed

	rows, err := s.db.QueryContext(ctx, `
		select id, event_id, start_at, end_at from date_stamps
		where event_id=$1 order by start_at asc
	`, ev.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	ev.Dates = nil
	for rows.Next() {
		var st event.DateStamp
		if err := rows.Scan(&st.ID, &st.EventID, &st.Start, &st.End); err != nil {
			return err
		}
		ev.Dates = append(ev.Dates, st)
	}
	return rows.Err()
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	// Child rows cascade; the single statement is already atomic.
	res, err := s.db.ExecContext(ctx, `delete from events where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (s *Store) OwnerRoles(ctx context.Context, eventID string) ([]roles.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.role from event_owners eo
		join users u on u.id = eo.user_id
		where eo.event_id=$1
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []roles.Role
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, roles.Role(r))
	}
	return out, rows.Err()
}

func (s *Store) ListVisibleEventIDs(ctx context.Context, visible []string, viewerID string) ([]string, error) {
	return s.stringColumn(ctx, `
		select id from events e
		where e.visibility = any($1)
		   or exists (select 1 from event_owners eo where eo.event_id = e.id and eo.user_id = $2)
		order by e.created_at asc
	`, visible, viewerID)
}

func (s *Store) SearchEvents(ctx context.Context, q event.SearchQuery) ([]*event.Event, error) {
	matchIDs, err := s.stringColumn(ctx, `
		select e.id from events e
		where (e.visibility = any($1)
		       or exists (select 1 from event_owners eo where eo.event_id = e.id and eo.user_id = $2))
		  and e.visibility like $3 || '%'
		  and exists (
			select 1 from date_stamps ds
			where ds.event_id = e.id and ds.start_at >= $4 and ds.end_at <= $5
		  )
		  and (e.name ilike '%' || $6 || '%'
		       or e.description ilike '%' || $6 || '%'
		       or e.location ilike '%' || $6 || '%')
		order by e.created_at asc
	`, q.Visible, q.ViewerID, q.VisibilityPrefix, q.From.UTC(), q.To.UTC(), q.Text)
	if err != nil {
		return nil, err
	}

	out := make([]*event.Event, 0, len(matchIDs))
	for _, id := range matchIDs {
		ev, err := s.GetEvent(ctx, id)
		if err != nil {
			if errors.Is(err, event.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) StampsInRange(ctx context.Context, from, to time.Time, visible []string) ([]event.DateStamp, error) {
	rows, err := s.db.QueryContext(ctx, `
		select ds.id, ds.event_id, ds.start_at, ds.end_at
		from date_stamps ds
		join events e on e.id = ds.event_id
		where ds.start_at >= $1 and ds.start_at < $2 and e.visibility = any($3)
		order by ds.start_at asc
	`, from.UTC(), to.UTC(), visible)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.DateStamp
	for rows.Next() {
		var st event.DateStamp
		if err := rows.Scan(&st.ID, &st.EventID, &st.Start, &st.End); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) UpcomingEventIDs(ctx context.Context, now time.Time, limit int, visible []string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select ds.event_id
		from date_stamps ds
		join events e on e.id = ds.event_id
		where ds.start_at >= $1 and e.visibility = any($2)
		order by ds.start_at asc
	`, now.UTC(), visible)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *Store) SetConfirmation(ctx context.Context, eventID, userID string, confirmed bool) error {
	if confirmed {
		_, err := s.db.ExecContext(ctx, `
			insert into event_confirmations(event_id, user_id) values ($1,$2)
			on conflict (event_id, user_id) do nothing
		`, eventID, userID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		delete from event_confirmations where event_id=$1 and user_id=$2
	`, eventID, userID)
	return err
}

func (s *Store) ConfirmedUsers(ctx context.Context, eventID string) ([]event.User, error) {
	return s.userJoin(ctx, `
		select u.id, coalesce(u.username,''), coalesce(u.name,''), u.role
		from event_confirmations ec
		join users u on u.id = ec.user_id
		where ec.event_id=$1
		order by u.id
	`, eventID)
}

func (s *Store) Owners(ctx context.Context, eventID string) ([]event.User, error) {
	return s.userJoin(ctx, `
		select u.id, coalesce(u.username,''), coalesce(u.name,''), u.role
		from event_owners eo
		join users u on u.id = eo.user_id
		where eo.event_id=$1
		order by u.id
	`, eventID)
}

func (s *Store) ListTags(ctx context.Context) ([]event.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `select name, color from tags order by name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.Tag
	for rows.Next() {
		var t event.Tag
		if err := rows.Scan(&t.Name, &t.Color); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) EventIDByShortLink(ctx context.Context, link string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `select id from events where short_link=$1`, link).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", event.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) userJoin(ctx context.Context, query string, args ...any) ([]event.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.User
	for rows.Next() {
		var (
			u    event.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &role); err != nil {
			return nil, err
		}
		u.Role = roles.Role(role)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
