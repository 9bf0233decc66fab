package scope

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ormscope/ormscope/internal/errs"
	"github.com/ormscope/ormscope/internal/orm"
)

// Route parameters that name records are matched with the same shapes
// the router would use for dedicated converters: a single decimal id,
// or a comma-separated list of them. Anything else is treated as a
// route miss and answered with 404, not 400, because a malformed id in
// the path means the URL does not exist.
var (
	recordPattern  = regexp.MustCompile(`^\d+$`)
	recordsPattern = regexp.MustCompile(`^\d+(,\d+)*$`)
)

// RecordRef is an unmaterialized reference to one record: the model
// name and the id parsed from the URL. It carries no data until the
// transaction scope resolves it through the model pool.
type RecordRef struct {
	Model string
	ID    int64
}

// Path renders the reference back into its URL segment. Parsing and
// rendering round-trip exactly: the decimal text that produced the
// reference is the text Path returns.
func (r RecordRef) Path() string {
	return strconv.FormatInt(r.ID, 10)
}

// RecordsRef is an unmaterialized reference to an ordered list of
// records of one model.
type RecordsRef struct {
	Model string
	IDs   []int64
}

// Path renders the reference back into its comma-separated URL segment.
func (r RecordsRef) Path() string {
	parts := make([]string, len(r.IDs))
	for i, id := range r.IDs {
		parts[i] = strconv.FormatInt(id, 10)
	}

	return strings.Join(parts, ",")
}

// ParseRecord parses a single-id URL segment into a RecordRef. A
// segment that does not match the single-id shape, or whose id does
// not fit in an int64, fails with a not-found error.
func ParseRecord(model, raw string) (RecordRef, error) {
	if !recordPattern.MatchString(raw) {
		return RecordRef{}, errs.NewNotFoundError("Resource not found", false, nil)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return RecordRef{}, errs.NewNotFoundError("Resource not found", false, nil)
	}

	return RecordRef{Model: model, ID: id}, nil
}

// ParseRecords parses a comma-separated id list into a RecordsRef,
// preserving the order the URL gave.
func ParseRecords(model, raw string) (RecordsRef, error) {
	if !recordsPattern.MatchString(raw) {
		return RecordsRef{}, errs.NewNotFoundError("Resource not found", false, nil)
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, len(parts))
	for i, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return RecordsRef{}, errs.NewNotFoundError("Resource not found", false, nil)
		}
		ids[i] = id
	}

	return RecordsRef{Model: model, IDs: ids}, nil
}

// ParamSpec declares that one route parameter names a record or a list
// of records of a given model. The transaction scope parses the
// parameter before the transaction opens and materializes the records
// inside it, so the handler receives loaded records instead of raw ids.
type ParamSpec struct {
	name  string
	model string
	many  bool
}

// Record declares a route parameter holding a single record id.
func Record(param, model string) ParamSpec {
	return ParamSpec{name: param, model: model}
}

// Records declares a route parameter holding a comma-separated id list.
func Records(param, model string) ParamSpec {
	return ParamSpec{name: param, model: model, many: true}
}

// boundParam is a spec whose URL segment already parsed. The ids wait
// here until a transaction exists to browse them in.
type boundParam struct {
	spec ParamSpec
	ids  []int64
}

// parseParams parses every declared parameter from the request path.
// Parsing is pure string work, so it happens once before the first
// attempt; a mismatch never costs a transaction.
func parseParams(c echo.Context, specs []ParamSpec) ([]boundParam, error) {
	bound := make([]boundParam, 0, len(specs))
	for _, spec := range specs {
		raw := c.Param(spec.name)
		if raw == "" {
			return nil, errs.NewNotFoundError("Resource not found", false, nil)
		}

		if spec.many {
			ref, err := ParseRecords(spec.model, raw)
			if err != nil {
				return nil, err
			}
			bound = append(bound, boundParam{spec: spec, ids: ref.IDs})
			continue
		}

		ref, err := ParseRecord(spec.model, raw)
		if err != nil {
			return nil, err
		}
		bound = append(bound, boundParam{spec: spec, ids: []int64{ref.ID}})
	}

	return bound, nil
}

// materialize loads every bound parameter through the model pool using
// the open transaction and stores the results on the request context.
// Runs once per attempt: a retried attempt browses again in its own
// transaction so the handler never sees records from a rolled-back one.
func materialize(ctx context.Context, c echo.Context, tx *orm.Tx, pool *orm.Pool, bound []boundParam) error {
	for _, b := range bound {
		model, err := pool.Get(b.spec.model)
		if err != nil {
			return err
		}

		records, err := model.Browse(ctx, tx, b.ids)
		if err != nil {
			return err
		}

		if b.spec.many {
			c.Set(paramKey(b.spec.name), records)
			continue
		}
		c.Set(paramKey(b.spec.name), records[0])
	}

	return nil
}

// Context keys for values the scope stores on the echo context.
const txKey = "scope:tx"

func paramKey(name string) string {
	return "scope:param:" + name
}

// TxFrom returns the transaction the scope opened for this request.
// Only valid inside a handler wrapped by Scope.Transaction.
func TxFrom(c echo.Context) (*orm.Tx, error) {
	tx, ok := c.Get(txKey).(*orm.Tx)
	if !ok {
		return nil, errors.New("no transaction on request context; handler is not wrapped by a transaction scope")
	}

	return tx, nil
}

// RecordFrom returns the record materialized for a single-id parameter.
func RecordFrom(c echo.Context, param string) (*orm.Record, error) {
	record, ok := c.Get(paramKey(param)).(*orm.Record)
	if !ok {
		return nil, errors.Errorf("no materialized record for parameter %q", param)
	}

	return record, nil
}

// RecordsFrom returns the records materialized for a list parameter,
// in URL order.
func RecordsFrom(c echo.Context, param string) ([]*orm.Record, error) {
	records, ok := c.Get(paramKey(param)).([]*orm.Record)
	if !ok {
		return nil, errors.Errorf("no materialized records for parameter %q", param)
	}

	return records, nil
}
