package dbal

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

type whereKind int

const (
	whereBasic whereKind = iota
	whereIn
	whereNull
	whereNotNull
)

type wherePredicate struct {
	kind         whereKind
	column       string
	operator     string
	placeholders []string
	boolean      string // AND | OR
}

type joinClause struct {
	kind     string // INNER | LEFT
	table    string
	left     string
	operator string
	right    string
}

type orderClause struct {
	column    string
	direction string
}

// Builder accumulates the clauses of one statement and executes it through
// its Connection. Methods return the same builder for chaining. The first
// invalid call is recorded and returned by the terminal operation, which
// then executes no SQL.
//
// A Builder is owned by one goroutine and is meant to be used once.
type Builder struct {
	conn    *Connection
	dialect Dialector

	table   string
	columns []string
	wheres  []wherePredicate
	joins   []joinClause
	orders  []orderClause
	groups  []string
	limit   *int
	offset  *int

	bindings map[string]interface{}
	seq      int
	err      error
}

func newBuilder(conn *Connection) *Builder {
	return &Builder{
		conn:     conn,
		dialect:  conn.Dialect(),
		bindings: make(map[string]interface{}),
	}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) escape(ident string) (string, bool) {
	e, err := EscapeIdentifier(b.dialect, ident)
	if err != nil {
		b.fail(err)
		return "", false
	}
	return e, true
}

// bind stores value under a fresh placeholder and returns it with its colon.
func (b *Builder) bind(value interface{}) string {
	b.seq++
	name := "p" + strconv.Itoa(b.seq)
	b.bindings[name] = value
	return ":" + name
}

// Table sets the target table.
func (b *Builder) Table(name string) *Builder {
	if e, ok := b.escape(name); ok {
		b.table = e
	}
	return b
}

// Select replaces the select list. The default is *.
func (b *Builder) Select(columns ...string) *Builder {
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		e, ok := b.escape(c)
		if !ok {
			return b
		}
		cols = append(cols, e)
	}
	b.columns = cols
	return b
}

// Where adds an AND predicate. IN and NOT IN take a slice value.
func (b *Builder) Where(column, operator string, value interface{}) *Builder {
	return b.where(column, operator, value, "AND")
}

// WhereEq adds an AND equality predicate.
func (b *Builder) WhereEq(column string, value interface{}) *Builder {
	return b.where(column, "=", value, "AND")
}

// OrWhere adds an OR predicate.
func (b *Builder) OrWhere(column, operator string, value interface{}) *Builder {
	return b.where(column, operator, value, "OR")
}

// OrWhereEq adds an OR equality predicate.
func (b *Builder) OrWhereEq(column string, value interface{}) *Builder {
	return b.where(column, "=", value, "OR")
}

func (b *Builder) where(column, operator string, value interface{}, boolean string) *Builder {
	op, err := normalizeOperator(operator, allowedOperators)
	if err != nil {
		return b.fail(err)
	}
	if op == "IN" || op == "NOT IN" {
		values, err := sliceValues(value)
		if err != nil {
			return b.fail(err)
		}
		return b.whereIn(column, op, values, boolean)
	}
	col, ok := b.escape(column)
	if !ok {
		return b
	}
	b.wheres = append(b.wheres, wherePredicate{
		kind:         whereBasic,
		column:       col,
		operator:     op,
		placeholders: []string{b.bind(value)},
		boolean:      boolean,
	})
	return b
}

// WhereIn adds an AND column IN (...) predicate with one placeholder per value.
func (b *Builder) WhereIn(column string, values []interface{}) *Builder {
	return b.whereIn(column, "IN", values, "AND")
}

// OrWhereIn adds an OR column IN (...) predicate.
func (b *Builder) OrWhereIn(column string, values []interface{}) *Builder {
	return b.whereIn(column, "IN", values, "OR")
}

// WhereNotIn adds an AND column NOT IN (...) predicate.
func (b *Builder) WhereNotIn(column string, values []interface{}) *Builder {
	return b.whereIn(column, "NOT IN", values, "AND")
}

func (b *Builder) whereIn(column, op string, values []interface{}, boolean string) *Builder {
	if len(values) == 0 {
		return b.fail(fmt.Errorf("%w: column %q", ErrEmptyValueSet, column))
	}
	col, ok := b.escape(column)
	if !ok {
		return b
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = b.bind(v)
	}
	b.wheres = append(b.wheres, wherePredicate{
		kind:         whereIn,
		column:       col,
		operator:     op,
		placeholders: placeholders,
		boolean:      boolean,
	})
	return b
}

// WhereNull adds an AND column IS NULL predicate.
func (b *Builder) WhereNull(column string) *Builder {
	return b.whereNullKind(column, whereNull)
}

// WhereNotNull adds an AND column IS NOT NULL predicate.
func (b *Builder) WhereNotNull(column string) *Builder {
	return b.whereNullKind(column, whereNotNull)
}

func (b *Builder) whereNullKind(column string, kind whereKind) *Builder {
	col, ok := b.escape(column)
	if !ok {
		return b
	}
	b.wheres = append(b.wheres, wherePredicate{kind: kind, column: col, boolean: "AND"})
	return b
}

// Join adds an INNER JOIN.
func (b *Builder) Join(table, left, operator, right string) *Builder {
	return b.join("INNER", table, left, operator, right)
}

// LeftJoin adds a LEFT JOIN.
func (b *Builder) LeftJoin(table, left, operator, right string) *Builder {
	return b.join("LEFT", table, left, operator, right)
}

func (b *Builder) join(kind, table, left, operator, right string) *Builder {
	op, err := normalizeOperator(operator, joinOperators)
	if err != nil {
		return b.fail(err)
	}
	t, ok := b.escape(table)
	if !ok {
		return b
	}
	l, ok := b.escape(left)
	if !ok {
		return b
	}
	r, ok := b.escape(right)
	if !ok {
		return b
	}
	b.joins = append(b.joins, joinClause{kind: kind, table: t, left: l, operator: op, right: r})
	return b
}

// OrderBy adds an ordering. direction is ASC or DESC, case-insensitive;
// empty means ASC.
func (b *Builder) OrderBy(column, direction string) *Builder {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir == "" {
		dir = "ASC"
	}
	if dir != "ASC" && dir != "DESC" {
		return b.fail(fmt.Errorf("%w: order direction %q", ErrInvalidArgument, direction))
	}
	col, ok := b.escape(column)
	if !ok {
		return b
	}
	b.orders = append(b.orders, orderClause{column: col, direction: dir})
	return b
}

// OrderByDesc adds a descending ordering.
func (b *Builder) OrderByDesc(column string) *Builder {
	return b.OrderBy(column, "DESC")
}

// GroupBy appends grouping columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	for _, c := range columns {
		col, ok := b.escape(c)
		if !ok {
			return b
		}
		b.groups = append(b.groups, col)
	}
	return b
}

// Limit sets the maximum number of rows.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		return b.fail(fmt.Errorf("%w: limit must be non-negative, got %d", ErrInvalidArgument, n))
	}
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		return b.fail(fmt.Errorf("%w: offset must be non-negative, got %d", ErrInvalidArgument, n))
	}
	b.offset = &n
	return b
}

// ToSQL renders the SELECT statement without executing it.
func (b *Builder) ToSQL() (string, error) {
	return b.compileSelect(selectOptions{})
}

// Bindings returns a copy of the placeholder→value map, keys with colon.
func (b *Builder) Bindings() map[string]interface{} {
	out := make(map[string]interface{}, len(b.bindings))
	for k, v := range b.bindings {
		out[":"+k] = v
	}
	return out
}

// Get executes the SELECT and returns all rows.
func (b *Builder) Get(ctx context.Context) ([]*Row, error) {
	query, err := b.compileSelect(selectOptions{})
	if err != nil {
		return nil, err
	}
	return b.conn.Select(ctx, query, b.bindings)
}

// First forces LIMIT 1 and returns the first row, or nil when none matches.
func (b *Builder) First(ctx context.Context) (*Row, error) {
	rows, err := b.Limit(1).Get(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Find returns the row whose id column equals id, or nil.
func (b *Builder) Find(ctx context.Context, id interface{}) (*Row, error) {
	return b.WhereEq("id", id).First(ctx)
}

// Count replaces the select list with COUNT(*) and returns the scalar.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	v, err := b.aggregate(ctx, "COUNT(*)")
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

// Exists reports whether Count is greater than zero.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	n, err := b.Count(ctx)
	return n > 0, err
}

// Max returns the largest value of column, or nil for an empty set.
func (b *Builder) Max(ctx context.Context, column string) (interface{}, error) {
	col, ok := b.escape(column)
	if !ok {
		return nil, b.err
	}
	return b.aggregate(ctx, "MAX("+col+")")
}

func (b *Builder) aggregate(ctx context.Context, expr string) (interface{}, error) {
	b.columns = []string{expr + " AS aggregate"}
	query, err := b.compileSelect(selectOptions{aggregate: true})
	if err != nil {
		return nil, err
	}
	rows, err := b.conn.Select(ctx, query, b.bindings)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	v, _ := rows[0].Get("aggregate")
	return v, nil
}

// Pluck returns the values of one column across the matching rows.
func (b *Builder) Pluck(ctx context.Context, column string) ([]interface{}, error) {
	rows, err := b.Select(column).Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		keys := r.Keys()
		if len(keys) == 0 {
			continue
		}
		v, _ := r.Get(keys[0])
		out = append(out, v)
	}
	return out, nil
}

// Insert inserts one row and reports whether a row was affected.
func (b *Builder) Insert(ctx context.Context, data map[string]interface{}) (bool, error) {
	query, err := b.prepareInsert(data)
	if err != nil {
		return false, err
	}
	var affected int64
	err = b.conn.Transaction(ctx, func() error {
		res, err := b.conn.Exec(ctx, query, b.bindings)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected > 0, err
}

// InsertGetID inserts one row and returns the generated id.
func (b *Builder) InsertGetID(ctx context.Context, data map[string]interface{}) (int64, error) {
	query, err := b.prepareInsert(data)
	if err != nil {
		return 0, err
	}
	var id int64
	err = b.conn.Transaction(ctx, func() error {
		if b.dialect.Name() == "pgsql" {
			rows, err := b.conn.Select(ctx, query+" RETURNING "+b.dialect.Quote("id"), b.bindings)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("insert returned no id")
			}
			id, err = rows[0].Int64("id")
			return err
		}
		res, err := b.conn.Exec(ctx, query, b.bindings)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (b *Builder) prepareInsert(data map[string]interface{}) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if b.table == "" {
		return "", ErrTableNotSet
	}
	if len(data) == 0 {
		return "", ErrEmptyInsert
	}
	return b.compileInsert(data)
}

// Update applies data to the matching rows and returns the affected count.
// At least one WHERE predicate is required.
func (b *Builder) Update(ctx context.Context, data map[string]interface{}) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.table == "" {
		return 0, ErrTableNotSet
	}
	if len(data) == 0 {
		return 0, ErrEmptyUpdate
	}
	if len(b.wheres) == 0 {
		return 0, ErrUnsafeWrite
	}
	query, err := b.compileUpdate(data)
	if err != nil {
		return 0, err
	}
	return b.write(ctx, query)
}

// Delete removes the matching rows and returns the affected count.
// At least one WHERE predicate is required.
func (b *Builder) Delete(ctx context.Context) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.table == "" {
		return 0, ErrTableNotSet
	}
	if len(b.wheres) == 0 {
		return 0, ErrUnsafeWrite
	}
	return b.write(ctx, b.compileDelete())
}

func (b *Builder) write(ctx context.Context, query string) (int64, error) {
	var affected int64
	err := b.conn.Transaction(ctx, func() error {
		res, err := b.conn.Exec(ctx, query, b.bindings)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// sliceValues flattens a slice or array value for IN predicates.
func sliceValues(value interface{}) ([]interface{}, error) {
	if vs, ok := value.([]interface{}); ok {
		return vs, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: IN requires a slice, got %T", ErrInvalidArgument, value)
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
