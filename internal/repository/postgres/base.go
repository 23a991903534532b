package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"auditstore/internal/apperr"
	"auditstore/internal/cache"
	"auditstore/internal/database"
	"auditstore/internal/metrics"
	"auditstore/internal/model"
	"auditstore/internal/record"
	"auditstore/internal/repository"
)

// MaxInsertRows caps the rows sent in one multi-row INSERT.
const MaxInsertRows = 1000

var tracer = otel.Tracer("auditstore/repository")

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var operators = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	"LIKE": {}, "NOT LIKE": {}, "ILIKE": {}, "IN": {}, "NOT IN": {},
	"IS": {}, "IS NOT": {},
}

// hooks are the extension points a concrete repository plugs into Base.
// Both run for every save; beforeCommit runs inside the write transaction.
type hooks struct {
	validate     func(ctx context.Context, m model.Model) error
	beforeCommit func(ctx context.Context, tx *database.Tx, m model.Model) error
}

// Option configures a repository.
type Option func(*Base)

// WithLogger sets the logger write failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(b *Base) { b.logger = l }
}

// WithMetrics records cache and write metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(b *Base) { b.metrics = c }
}

// WithMaxInsertRows overrides the batch insert chunk size.
func WithMaxInsertRows(n int) Option {
	return func(b *Base) {
		if n > 0 {
			b.maxInsertRows = n
		}
	}
}

// WithCacheSize bounds every identity map field of the repository.
func WithCacheSize(n int) Option {
	return func(b *Base) { b.cacheSize = n }
}

// Base implements the CRUD primitives shared by all repositories: single-row
// load, transactional insert/update, delete, chunked upsert and collection
// reads. It contains no entity-specific logic.
type Base struct {
	db            *sql.DB
	logger        *slog.Logger
	metrics       *metrics.Collector
	maxInsertRows int
	cacheSize     int
	hooks         hooks
}

func newBase(db *sql.DB, h hooks, opts ...Option) *Base {
	b := &Base{
		db:            db,
		logger:        slog.New(slog.DiscardHandler),
		maxInsertRows: MaxInsertRows,
		cacheSize:     cache.DefaultSize,
		hooks:         h,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.hooks.validate == nil {
		b.hooks.validate = func(context.Context, model.Model) error { return nil }
	}
	if b.hooks.beforeCommit == nil {
		b.hooks.beforeCommit = func(context.Context, *database.Tx, model.Model) error { return nil }
	}
	return b
}

// Load hydrates m from the newest row where field equals value. field may
// be nil (primary key), a column name, or a []string of columns matched
// against an equally long slice value. When no row matches, m is left
// untouched and no error is returned; callers check m.ID().
func (b *Base) Load(ctx context.Context, m model.Model, value, field any) error {
	return b.load(ctx, b.db, m, value, field, "*")
}

// LoadColumns is Load restricted to the given SELECT list.
func (b *Base) LoadColumns(ctx context.Context, m model.Model, value, field any, columns string) error {
	return b.load(ctx, b.db, m, value, field, columns)
}

func (b *Base) load(ctx context.Context, q database.Querier, m model.Model, value, field any, columns string) error {
	if err := checkSelectList(strings.Split(columns, ",")); err != nil {
		return err
	}
	if field == nil {
		field = m.PrimaryKey()
	}
	fields, values, err := lookupTerms(field, value)
	if err != nil {
		return err
	}

	conds := make([]string, len(fields))
	for i, f := range fields {
		conds[i] = fmt.Sprintf("%s = $%d", f, i+1)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s DESC LIMIT 1",
		columns, m.TableName(), strings.Join(conds, " AND "), m.PrimaryKey())

	rows, err := q.QueryContext(ctx, query, values...)
	if err != nil {
		return fmt.Errorf("load %s: %w", m.Kind(), err)
	}
	defer rows.Close()

	if !rows.Next() {
		return rows.Err()
	}
	row, err := scanRow(rows)
	if err != nil {
		return fmt.Errorf("load %s: %w", m.Kind(), err)
	}
	m.SetData(row)
	return rows.Err()
}

// checkSelectList accepts "*" or plain column names.
func checkSelectList(columns []string) error {
	for _, c := range columns {
		c = strings.TrimSpace(c)
		if c != "*" && !identifierRe.MatchString(c) {
			return apperr.IncorrectData("invalid select column %q", c)
		}
	}
	return nil
}

// lookupTerms pairs lookup columns with values. Both must be scalars or both
// sequences of the same non-zero length.
func lookupTerms(field, value any) ([]string, []any, error) {
	valueSeq := isSequence(value)
	switch f := field.(type) {
	case string:
		if valueSeq {
			return nil, nil, apperr.IncorrectData("value and field should be both sequences or both scalars")
		}
		if !identifierRe.MatchString(f) {
			return nil, nil, apperr.IncorrectData("invalid field name %q", f)
		}
		return []string{f}, []any{value}, nil
	case []string:
		if !valueSeq {
			return nil, nil, apperr.IncorrectData("value and field should be both sequences or both scalars")
		}
		values := sequence(value)
		if len(f) == 0 || len(f) != len(values) {
			return nil, nil, apperr.IncorrectData("got %d fields for %d values", len(f), len(values))
		}
		for _, name := range f {
			if !identifierRe.MatchString(name) {
				return nil, nil, apperr.IncorrectData("invalid field name %q", name)
			}
		}
		return f, values, nil
	default:
		return nil, nil, apperr.IncorrectData("field must be a column name or a list of column names, got %T", field)
	}
}

func isSequence(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func sequence(v any) []any {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// scanRow reads the current row into a normalized field mapping.
func scanRow(rows *sql.Rows) (map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(map[string]any, len(cols))
	for i, c := range cols {
		row[c] = record.Normalize(vals[i])
	}
	return row, nil
}

// SaveModel validates m, then inserts it when it has no id or updates it
// otherwise. tx may be nil; see database.InTx for ownership rules.
func (b *Base) SaveModel(ctx context.Context, tx *database.Tx, m model.Model) (err error) {
	ctx, span := tracer.Start(ctx, "repository.Save", trace.WithAttributes(
		attribute.String("entity", m.Kind().String()),
		attribute.Bool("ambient_tx", tx != nil),
	))
	defer func() { endSpan(span, err) }()

	if err := b.hooks.validate(ctx, m); err != nil {
		return err
	}
	if _, ok := m.ID(); ok {
		return b.UpdateModel(ctx, tx, m)
	}
	return b.insertModel(ctx, tx, m)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (b *Base) insertModel(ctx context.Context, tx *database.Tx, m model.Model) error {
	data := m.ToMap()
	delete(data, m.PrimaryKey())
	cols := sortedKeys(data)
	if err := checkColumns(cols); err != nil {
		return err
	}

	var query string
	args := make([]any, len(cols))
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", m.TableName(), m.PrimaryKey())
	} else {
		placeholders := make([]string, len(cols))
		for i, c := range cols {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = data[c]
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			m.TableName(), strings.Join(cols, ", "), strings.Join(placeholders, ", "), m.PrimaryKey())
	}

	before, beforeOrig := m.ToMap(), m.OrigData()
	var txID string
	err := database.InTx(ctx, b.db, tx, func(tx *database.Tx) error {
		txID = tx.ID()
		var id int64
		if err := tx.Querier().QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return err
		}
		if err := b.load(ctx, tx.Querier(), m, id, m.PrimaryKey(), "*"); err != nil {
			return err
		}
		m.SetIsNew(true)
		return b.hooks.beforeCommit(ctx, tx, m)
	})
	b.metrics.Write(m.Kind().String(), "insert", err)
	if err != nil {
		// the row was never committed, so forget the id it was given
		m.SetData(before)
		m.SetOrigData(beforeOrig)
		m.SetIsNew(false)
		b.logger.ErrorContext(ctx, "entity insert failed",
			slog.String("entity", m.Kind().String()),
			slog.String("tx_id", txID),
			slog.Any("error", err),
		)
		return apperr.NewSaveError(err)
	}
	return nil
}

// UpdateModel writes every field except the primary key and, once the write
// succeeds, makes the current fields the new original snapshot.
func (b *Base) UpdateModel(ctx context.Context, tx *database.Tx, m model.Model) error {
	id, ok := m.ID()
	if !ok {
		return apperr.IncorrectData("cannot update %s without %s", m.Kind(), m.PrimaryKey())
	}
	data := m.ToMap()
	delete(data, m.PrimaryKey())
	cols := sortedKeys(data)
	if err := checkColumns(cols); err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	set := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		set[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, data[c])
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		m.TableName(), strings.Join(set, ", "), m.PrimaryKey(), len(args))

	var txID string
	err := database.InTx(ctx, b.db, tx, func(tx *database.Tx) error {
		txID = tx.ID()
		if _, err := tx.Querier().ExecContext(ctx, query, args...); err != nil {
			return err
		}
		return b.hooks.beforeCommit(ctx, tx, m)
	})
	b.metrics.Write(m.Kind().String(), "update", err)
	if err != nil {
		b.logger.ErrorContext(ctx, "entity update failed",
			slog.String("entity", m.Kind().String()),
			slog.Int64("id", id),
			slog.String("tx_id", txID),
			slog.Any("error", err),
		)
		return apperr.NewSaveError(err)
	}

	m.SetOrigData(m.ToMap())
	return nil
}

// DeleteModel removes m's row, or stamps its deleted column with the store's
// current time when soft is set. It reports whether a row was affected and
// does not touch any cache.
func (b *Base) DeleteModel(ctx context.Context, tx *database.Tx, m model.Model, soft bool) (bool, error) {
	id, ok := m.ID()
	if !ok {
		return false, apperr.IncorrectData("cannot delete %s without %s", m.Kind(), m.PrimaryKey())
	}

	var query string
	if soft {
		if _, ok := m.(model.SoftDeletable); !ok {
			return false, apperr.IncorrectData("%s does not support soft delete", m.Kind())
		}
		query = fmt.Sprintf("UPDATE %s SET %s = NOW() WHERE %s = $1", m.TableName(), model.FieldDeleted, m.PrimaryKey())
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE %s = $1", m.TableName(), m.PrimaryKey())
	}

	var q database.Querier = b.db
	if tx != nil {
		q = tx.Querier()
	}
	res, err := q.ExecContext(ctx, query, id)
	op := "hard_delete"
	if soft {
		op = "soft_delete"
	}
	b.metrics.Write(m.Kind().String(), op, err)
	if err != nil {
		b.logger.ErrorContext(ctx, "entity delete failed",
			slog.String("entity", m.Kind().String()),
			slog.Int64("id", id),
			slog.Any("error", err),
		)
		return false, fmt.Errorf("delete %s %d: %w", m.Kind(), id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertBatch upserts rows into table in chunks of at most maxInsertRows,
// one statement per chunk. A row colliding on the conflict columns updates
// the existing row in place. The column list is taken from the first row;
// columns a later row lacks are sent as NULL. The first failing chunk aborts
// the remaining ones.
func (b *Base) InsertBatch(ctx context.Context, table string, conflict []string, rows []map[string]any) (err error) {
	if len(rows) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "repository.InsertBatch", trace.WithAttributes(
		attribute.String("table", table),
		attribute.Int("rows", len(rows)),
	))
	defer func() { endSpan(span, err) }()

	if len(conflict) == 0 {
		return apperr.IncorrectData("batch insert into %s needs conflict columns", table)
	}
	cols := sortedKeys(rows[0])
	if err := checkColumns(cols); err != nil {
		return err
	}
	if err := checkColumns(conflict); err != nil {
		return err
	}

	for start := 0; start < len(rows); start += b.maxInsertRows {
		end := min(start+b.maxInsertRows, len(rows))
		query, args := buildUpsert(table, cols, conflict, rows[start:end])

		_, err := b.db.ExecContext(ctx, query, args...)
		b.metrics.Write(table, "batch_insert", err)
		if err != nil {
			b.logger.ErrorContext(ctx, "batch insert failed",
				slog.String("table", table),
				slog.Int("chunk_start", start),
				slog.Int("chunk_rows", end-start),
				slog.Any("error", err),
			)
			return apperr.NewSaveError(err)
		}
	}
	return nil
}

func buildUpsert(table string, cols, conflict []string, rows []map[string]any) (string, []any) {
	args := make([]any, 0, len(rows)*len(cols))
	tuples := make([]string, len(rows))
	for r, row := range rows {
		ph := make([]string, len(cols))
		for i, c := range cols {
			args = append(args, record.Normalize(row[c]))
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		tuples[r] = "(" + strings.Join(ph, ", ") + ")"
	}
	update := make([]string, len(cols))
	for i, c := range cols {
		update[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(tuples, ", "),
		strings.Join(conflict, ", "), strings.Join(update, ", "))
	return query, args
}

// buildSelect renders q against table.
func buildSelect(table string, q repository.Query) (string, []any, error) {
	fields := q.Fields
	if len(fields) == 0 {
		fields = []string{"*"}
	}
	if err := checkSelectList(fields); err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(fields, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	var args []any
	if len(q.Where) > 0 {
		conds := make([]string, 0, len(q.Where))
		for _, c := range q.Where {
			if !identifierRe.MatchString(c.Field) {
				return "", nil, apperr.IncorrectData("invalid field name %q", c.Field)
			}
			op := strings.ToUpper(strings.TrimSpace(c.Operator))
			if _, ok := operators[op]; !ok {
				return "", nil, apperr.IncorrectData("unsupported operator %q", c.Operator)
			}
			if op == "IS" || op == "IS NOT" {
				if c.Value != nil {
					return "", nil, apperr.IncorrectData("%s %s only compares with NULL", c.Field, op)
				}
				conds = append(conds, fmt.Sprintf("%s %s NULL", c.Field, op))
				continue
			}
			listOp := op == "IN" || op == "NOT IN"
			if listOp != isSequence(c.Value) {
				return "", nil, apperr.IncorrectData("%s %s needs a value list only for IN and NOT IN", c.Field, op)
			}
			if listOp {
				values := sequence(c.Value)
				if len(values) == 0 {
					return "", nil, apperr.IncorrectData("empty value list for %s", c.Field)
				}
				ph := make([]string, len(values))
				for i, v := range values {
					args = append(args, v)
					ph[i] = fmt.Sprintf("$%d", len(args))
				}
				conds = append(conds, fmt.Sprintf("%s %s (%s)", c.Field, op, strings.Join(ph, ", ")))
				continue
			}
			args = append(args, c.Value)
			conds = append(conds, fmt.Sprintf("%s %s $%d", c.Field, op, len(args)))
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if len(q.Order) > 0 {
		terms := make([]string, len(q.Order))
		for i, o := range q.Order {
			if !identifierRe.MatchString(o.Field) {
				return "", nil, apperr.IncorrectData("invalid order field %q", o.Field)
			}
			dir := repository.DESC
			if o.Direction == repository.ASC {
				dir = repository.ASC
			}
			terms[i] = o.Field + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
	}
	return sb.String(), args, nil
}

// loadCollection runs q against table once and hydrates every row into a
// fresh entity from newT, keeping store order.
func loadCollection[T model.Model](ctx context.Context, b *Base, newT func() T, table string, q repository.Query) ([]T, error) {
	query, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", table, err)
		}
		m := newT()
		m.SetData(row)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkColumns(cols []string) error {
	for _, c := range cols {
		if !identifierRe.MatchString(c) {
			return apperr.IncorrectData("invalid column name %q", c)
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
