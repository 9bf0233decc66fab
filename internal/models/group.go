package models

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ormscope/ormscope/internal/orm"
)

// GroupModel serves the res.group model.
type GroupModel struct{}

func (m *GroupModel) Name() string {
	return "res.group"
}

func (m *GroupModel) Browse(ctx context.Context, tx *orm.Tx, ids []int64) ([]*orm.Record, error) {
	rows, err := tx.Conn().Query(ctx, `
		SELECT g.id, g.name, g.active, count(ug.user_id)
		  FROM res_group g
		  LEFT JOIN res_user_res_group ug ON ug.group_id = g.id
		 WHERE g.id = ANY($1)
		 GROUP BY g.id, g.name, g.active`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "browsing res.group")
	}
	defer rows.Close()

	byID := make(map[int64]*orm.Record, len(ids))
	for rows.Next() {
		var (
			id      int64
			name    string
			active  bool
			members int64
		)
		if err := rows.Scan(&id, &name, &active, &members); err != nil {
			return nil, errors.Wrap(err, "scanning res.group")
		}

		byID[id] = orm.NewRecord(m.Name(), id, map[string]any{
			"name":    name,
			"active":  active,
			"members": members,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "browsing res.group")
	}

	records := make([]*orm.Record, len(ids))
	for i, id := range ids {
		record, ok := byID[id]
		if !ok {
			return nil, errors.Wrapf(orm.ErrNotFound, "res.group(%d)", id)
		}
		records[i] = record
	}

	return records, nil
}
