package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/ormscope/ormscope/internal/orm"
)

// TaskIndexSearchName rebuilds the denormalized search_name column for
// one user. Queued by Create so the write request does not pay for it.
const TaskIndexSearchName = "index_search_name"

// loginCache maps login to user id. Invalidated whenever a user is
// created so other processes drop their copy too.
const loginCache = "res.user.login"

// UserModel serves the res.user model.
type UserModel struct {
	logins *orm.Store
}

func NewUserModel(cache *orm.Cache) *UserModel {
	return &UserModel{logins: cache.Register(loginCache)}
}

func (m *UserModel) Name() string {
	return "res.user"
}

// Browse loads users with their language code and group names, in the
// order the ids were given.
func (m *UserModel) Browse(ctx context.Context, tx *orm.Tx, ids []int64) ([]*orm.Record, error) {
	rows, err := tx.Conn().Query(ctx, `
		SELECT u.id, u.login, u.name, u.email, u.active, u.created_at, l.code,
		       coalesce(array_agg(g.name ORDER BY g.name) FILTER (WHERE g.id IS NOT NULL), '{}')
		  FROM res_user u
		  LEFT JOIN ir_lang l ON l.id = u.language_id
		  LEFT JOIN res_user_res_group ug ON ug.user_id = u.id
		  LEFT JOIN res_group g ON g.id = ug.group_id
		 WHERE u.id = ANY($1)
		 GROUP BY u.id, u.login, u.name, u.email, u.active, u.created_at, l.code`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "browsing res.user")
	}
	defer rows.Close()

	byID := make(map[int64]*orm.Record, len(ids))
	for rows.Next() {
		var (
			id       int64
			login    string
			name     string
			email    *string
			active   bool
			created  time.Time
			language *string
			groups   []string
		)
		if err := rows.Scan(&id, &login, &name, &email, &active, &created, &language, &groups); err != nil {
			return nil, errors.Wrap(err, "scanning res.user")
		}

		fields := map[string]any{
			"login":      login,
			"name":       name,
			"active":     active,
			"created_at": created,
			"groups":     groups,
		}
		if email != nil {
			fields["email"] = *email
		}
		if language != nil {
			fields["language"] = *language
		}
		byID[id] = orm.NewRecord(m.Name(), id, fields)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "browsing res.user")
	}

	records := make([]*orm.Record, len(ids))
	for i, id := range ids {
		record, ok := byID[id]
		if !ok {
			return nil, errors.Wrapf(orm.ErrNotFound, "res.user(%d)", id)
		}
		records[i] = record
	}

	return records, nil
}

// CreateUserInput carries the fields of a new user. Language is an
// ir.lang code and may be empty.
type CreateUserInput struct {
	Login    string
	Name     string
	Email    string
	Language string
}

// Create inserts a user, queues the search index rebuild, and marks
// the login cache dirty. Rule violations come back as domain errors so
// the transaction layer can answer them with a 400.
func (m *UserModel) Create(ctx context.Context, tx *orm.Tx, input CreateUserInput) (*orm.Record, error) {
	login := strings.TrimSpace(input.Login)
	if login == "" {
		return nil, &orm.UserError{Message: "Login is required."}
	}
	if strings.ContainsAny(login, " \t") {
		return nil, &orm.UserError{Message: "Login must not contain spaces."}
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, &orm.UserError{Message: "Name is required."}
	}

	if _, ok, err := m.ByLogin(ctx, tx, login); err != nil {
		return nil, err
	} else if ok {
		return nil, &orm.UserError{
			Message: "A user with this login already exists.",
			Detail:  "Logins identify users and have to stay unique.",
		}
	}

	var languageID *int64
	if input.Language != "" {
		var id int64
		err := tx.Conn().QueryRow(ctx,
			`SELECT id FROM ir_lang WHERE code = $1 AND active`, input.Language).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &orm.UserError{Message: "Unknown language code " + input.Language + "."}
			}
			return nil, errors.Wrap(err, "resolving language")
		}
		languageID = &id
	}

	var email *string
	if input.Email != "" {
		email = &input.Email
	}

	var id int64
	err := tx.Conn().QueryRow(ctx, `
		INSERT INTO res_user (login, name, email, language_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, login, input.Name, email, languageID).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "creating res.user")
	}

	if _, err := tx.EnqueueTask(ctx, m.Name(), TaskIndexSearchName, map[string]any{"user_id": id}); err != nil {
		return nil, err
	}
	tx.MarkCacheDirty(loginCache)

	records, err := m.Browse(ctx, tx, []int64{id})
	if err != nil {
		return nil, err
	}

	return records[0], nil
}

// Delete removes a user. The root account is protected; deleting it
// is refused with a domain error.
func (m *UserModel) Delete(ctx context.Context, tx *orm.Tx, user *orm.Record) error {
	if user.ID() == int64(orm.RootUser) {
		return &orm.UserError{
			Message: "The root user cannot be deleted.",
			Detail:  "Deactivate the account instead if it should no longer be used.",
		}
	}

	if _, err := tx.Conn().Exec(ctx,
		`DELETE FROM res_user_res_group WHERE user_id = $1`, user.ID()); err != nil {
		return errors.Wrap(err, "removing res.user group links")
	}
	if _, err := tx.Conn().Exec(ctx,
		`DELETE FROM res_user WHERE id = $1`, user.ID()); err != nil {
		return errors.Wrap(err, "deleting res.user")
	}

	tx.MarkCacheDirty(loginCache)

	return nil
}

// ByLogin resolves a login to its user id, read through the login
// cache.
func (m *UserModel) ByLogin(ctx context.Context, tx *orm.Tx, login string) (int64, bool, error) {
	if cached, ok := m.logins.Get(login); ok {
		id, ok := cached.(int64)
		return id, ok, nil
	}

	var id int64
	err := tx.Conn().QueryRow(ctx,
		`SELECT id FROM res_user WHERE login = $1`, login).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "looking up res.user by login")
	}

	m.logins.Set(login, id)

	return id, true, nil
}

// ExecuteTask dispatches queued res.user work.
func (m *UserModel) ExecuteTask(ctx context.Context, tx *orm.Tx, method string, data []byte) error {
	switch method {
	case TaskIndexSearchName:
		return m.indexSearchName(ctx, tx, data)
	}

	return errors.Errorf("res.user: unknown task method %q", method)
}

func (m *UserModel) indexSearchName(ctx context.Context, tx *orm.Tx, data []byte) error {
	var payload struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.Wrap(err, "decoding index_search_name payload")
	}

	_, err := tx.Conn().Exec(ctx, `
		UPDATE res_user
		   SET search_name = lower(name || ' ' || login)
		 WHERE id = $1`, payload.UserID)

	return errors.Wrap(err, "indexing search_name")
}
