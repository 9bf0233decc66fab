package models

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/ormscope/ormscope/internal/orm"
)

const langCache = "ir.lang"

const langColumns = `id, code, name, translatable, date_format, decimal_point, thousands_sep, grouping, active`

// LangModel serves the ir.lang model. Languages change rarely and are
// read on nearly every formatted response, so lookups go through a
// cache store that the invalidation protocol keeps honest across
// processes.
type LangModel struct {
	cache *orm.Store
}

func NewLangModel(cache *orm.Cache) *LangModel {
	return &LangModel{cache: cache.Register(langCache)}
}

func (m *LangModel) Name() string {
	return "ir.lang"
}

func (m *LangModel) Browse(ctx context.Context, tx *orm.Tx, ids []int64) ([]*orm.Record, error) {
	rows, err := tx.Conn().Query(ctx,
		`SELECT `+langColumns+` FROM ir_lang WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "browsing ir.lang")
	}

	byID := make(map[int64]*orm.Record, len(ids))
	for rows.Next() {
		record, err := m.scanLang(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		byID[record.ID()] = record
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "browsing ir.lang")
	}

	records := make([]*orm.Record, len(ids))
	for i, id := range ids {
		record, ok := byID[id]
		if !ok {
			return nil, errors.Wrapf(orm.ErrNotFound, "ir.lang(%d)", id)
		}
		records[i] = record
	}

	return records, nil
}

// Translatable returns the active translatable languages ordered by
// code. The result is cached; language edits invalidate it.
func (m *LangModel) Translatable(ctx context.Context, tx *orm.Tx) ([]*orm.Record, error) {
	if cached, ok := m.cache.Get("translatable"); ok {
		if records, ok := cached.([]*orm.Record); ok {
			return records, nil
		}
	}

	rows, err := tx.Conn().Query(ctx,
		`SELECT `+langColumns+` FROM ir_lang WHERE translatable AND active ORDER BY code`)
	if err != nil {
		return nil, errors.Wrap(err, "listing translatable languages")
	}

	var records []*orm.Record
	for rows.Next() {
		record, err := m.scanLang(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, record)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing translatable languages")
	}

	m.cache.Set("translatable", records)

	return records, nil
}

// ByCode loads one language by its code.
func (m *LangModel) ByCode(ctx context.Context, tx *orm.Tx, code string) (*orm.Record, error) {
	if cached, ok := m.cache.Get("code:" + code); ok {
		if record, ok := cached.(*orm.Record); ok {
			return record, nil
		}
	}

	rows, err := tx.Conn().Query(ctx,
		`SELECT `+langColumns+` FROM ir_lang WHERE code = $1`, code)
	if err != nil {
		return nil, errors.Wrap(err, "loading ir.lang by code")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "loading ir.lang by code")
		}
		return nil, errors.Wrapf(orm.ErrNotFound, "ir.lang %q", code)
	}

	record, err := m.scanLang(rows)
	if err != nil {
		return nil, err
	}

	m.cache.Set("code:"+code, record)

	return record, nil
}

func (m *LangModel) scanLang(rows pgx.Rows) (*orm.Record, error) {
	var (
		id           int64
		code         string
		name         string
		translatable bool
		dateFormat   string
		decimalPoint string
		thousandsSep string
		grouping     string
		active       bool
	)
	if err := rows.Scan(&id, &code, &name, &translatable, &dateFormat, &decimalPoint, &thousandsSep, &grouping, &active); err != nil {
		return nil, errors.Wrap(err, "scanning ir.lang")
	}

	return orm.NewRecord(m.Name(), id, map[string]any{
		"code":          code,
		"name":          name,
		"translatable":  translatable,
		"date_format":   dateFormat,
		"decimal_point": decimalPoint,
		"thousands_sep": thousandsSep,
		"grouping":      grouping,
		"active":        active,
	}), nil
}
