package dbal_test

import (
	"context"
	"testing"

	"github.com/apileon/dbal"
	_ "github.com/apileon/dbal/drivers/db/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSQL_PredicateOrdering(t *testing.T) {
	conn := newTestConnection(t)

	sql, err := conn.Table("users").WhereEq("a", 1).OrWhereEq("b", 2).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "a" = :p1 OR "b" = :p2`, sql)

	sql, err = conn.Table("users").OrWhere("a", "=", 1).Where("b", ">", 2).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "a" = :p1 AND "b" > :p2`, sql)
}

func TestToSQL_ClauseOrder(t *testing.T) {
	conn := newTestConnection(t)

	b := conn.Table("users").
		Select("users.id", "posts.title").
		LeftJoin("posts", "users.id", "=", "posts.user_id").
		WhereIn("users.id", []interface{}{1, 2}).
		WhereNull("posts.deleted_at").
		GroupBy("users.id").
		OrderBy("users.id", "desc").
		Limit(10).
		Offset(5)

	sql, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "users"."id", "posts"."title" FROM "users" `+
		`LEFT JOIN "posts" ON "users"."id" = "posts"."user_id" `+
		`WHERE "users"."id" IN (:p1, :p2) AND "posts"."deleted_at" IS NULL `+
		`GROUP BY "users"."id" ORDER BY "users"."id" DESC LIMIT 10 OFFSET 5`, sql)
	assert.Equal(t, map[string]interface{}{":p1": 1, ":p2": 2}, b.Bindings())
}

func TestToSQL_OffsetWithoutLimit(t *testing.T) {
	conn := newTestConnection(t)

	sql, err := conn.Table("users").Offset(3).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" LIMIT -1 OFFSET 3`, sql)
}

func TestToSQL_InjectionSafety(t *testing.T) {
	conn := newTestConnection(t)

	render := func(v string) (string, map[string]interface{}) {
		b := conn.Table("users").WhereEq("email", v)
		sql, err := b.ToSQL()
		require.NoError(t, err)
		return sql, b.Bindings()
	}

	plainSQL, _ := render("a@x.com")
	evilSQL, evilBindings := render("' OR 1=1 --")
	assert.Equal(t, plainSQL, evilSQL)
	assert.NotContains(t, evilSQL, "OR 1=1")
	assert.Equal(t, "' OR 1=1 --", evilBindings[":p1"])

	sql, err := conn.Table(`users"; DROP TABLE users; --`).Select("na\"me").ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "name" FROM "usersDROPTABLEusers"`, sql)
}

func TestWhere_Operators(t *testing.T) {
	conn := newTestConnection(t)

	sql, err := conn.Table("users").Where("name", "like", "%a%").Where("id", "not  in", []int{1, 2}).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "name" LIKE :p1 AND "id" NOT IN (:p2, :p3)`, sql)

	_, err = conn.Table("users").Where("id", "; DROP", 1).ToSQL()
	assert.ErrorIs(t, err, dbal.ErrInvalidOperator)

	_, err = conn.Table("users").Where("id", "IN", 5).ToSQL()
	assert.ErrorIs(t, err, dbal.ErrInvalidArgument)

	_, err = conn.Table("users").Join("posts", "users.id", "LIKE", "posts.user_id").ToSQL()
	assert.ErrorIs(t, err, dbal.ErrInvalidOperator)
}

func TestWhereIn_EmptyValueSet(t *testing.T) {
	conn := newTestConnection(t)
	ctx := context.Background()

	b := conn.Table("users").WhereIn("id", []interface{}{})
	_, err := b.ToSQL()
	assert.ErrorIs(t, err, dbal.ErrEmptyValueSet)
	_, err = b.Get(ctx)
	assert.ErrorIs(t, err, dbal.ErrEmptyValueSet)

	_, err = conn.Table("users").Where("id", "IN", []string{}).Get(ctx)
	assert.ErrorIs(t, err, dbal.ErrEmptyValueSet)
}

func TestInvalidArguments(t *testing.T) {
	conn := newTestConnection(t)

	_, err := conn.Table("users").Limit(-1).ToSQL()
	assert.ErrorIs(t, err, dbal.ErrInvalidArgument)
	_, err = conn.Table("users").Offset(-1).ToSQL()
	assert.ErrorIs(t, err, dbal.ErrInvalidArgument)
	_, err = conn.Table("users").OrderBy("id", "sideways").ToSQL()
	assert.ErrorIs(t, err, dbal.ErrInvalidArgument)
	_, err = conn.Table("---").ToSQL()
	assert.ErrorIs(t, err, dbal.ErrInvalidArgument)
}

func TestWriteGuard(t *testing.T) {
	conn, reg := newMeteredConnection(t)
	ctx := context.Background()

	_, err := conn.Table("users").Update(ctx, map[string]interface{}{"name": "x"})
	assert.ErrorIs(t, err, dbal.ErrUnsafeWrite)
	_, err = conn.Table("users").Delete(ctx)
	assert.ErrorIs(t, err, dbal.ErrUnsafeWrite)
	_, err = conn.Table("users").WhereEq("id", 1).Update(ctx, map[string]interface{}{})
	assert.ErrorIs(t, err, dbal.ErrEmptyUpdate)
	_, err = conn.Table("users").Insert(ctx, map[string]interface{}{})
	assert.ErrorIs(t, err, dbal.ErrEmptyInsert)

	assertStatementCount(t, reg, 0)
}

func TestInsertAndRead(t *testing.T) {
	conn := newTestConnection(t)
	ctx := context.Background()
	seedUsers(t, conn)

	user, err := conn.Table("users").WhereEq("email", "b@x.com").First(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "B", user.String("name"))
	assert.Equal(t, []string{"id", "name", "email", "age", "status"}, user.Keys())

	missing, err := conn.Table("users").WhereEq("email", "nobody@x.com").First(ctx)
	require.NoError(t, err)
	assert.Nil(t, missing)

	found, err := conn.Table("users").Find(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a@x.com", found.String("email"))

	rows, err := conn.Table("users").Where("age", ">=", 30).OrderByDesc("age").Get(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "C", rows[0].String("name"))
	assert.Equal(t, "B", rows[1].String("name"))

	names, err := conn.Table("users").OrderBy("name", "").Pluck(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"A", "B", "C"}, names)
}

func TestInsertGetID(t *testing.T) {
	conn := newTestConnection(t)
	ctx := context.Background()

	id, err := conn.Table("users").InsertGetID(ctx, map[string]interface{}{"name": "A", "email": "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = conn.Table("users").InsertGetID(ctx, map[string]interface{}{"name": "B", "email": "b@x.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestAggregates(t *testing.T) {
	conn := newTestConnection(t)
	ctx := context.Background()
	seedUsers(t, conn)

	n, err := conn.Table("users").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = conn.Table("users").Where("age", ">", 30).OrderBy("name", "asc").Limit(1).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := conn.Table("users").WhereEq("status", "banned").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	max, err := conn.Table("users").Max(ctx, "age")
	require.NoError(t, err)
	assert.EqualValues(t, 40, max)
}

func TestUpdateAndDelete(t *testing.T) {
	conn := newTestConnection(t)
	ctx := context.Background()
	seedUsers(t, conn)

	n, err := conn.Table("users").WhereIn("email", []interface{}{"a@x.com", "b@x.com"}).
		Update(ctx, map[string]interface{}{"status": "inactive"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = conn.Table("users").WhereEq("status", "inactive").Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := conn.Table("users").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)
}

func TestInsertConflict(t *testing.T) {
	conn := newTestConnection(t)
	ctx := context.Background()
	seedUsers(t, conn)

	_, err := conn.Table("users").Insert(ctx, map[string]interface{}{"name": "Dup", "email": "a@x.com"})
	require.Error(t, err)
	assert.True(t, dbal.IsConflict(err))

	var qe *dbal.QueryExecutionError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, `INSERT INTO "users" ("email", "name") VALUES (:p1, :p2)`, qe.SQL)
	assert.False(t, conn.InTransaction())
}

func seedUsers(t *testing.T, conn *dbal.Connection) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []map[string]interface{}{
		{"name": "A", "email": "a@x.com", "age": 20, "status": "active"},
		{"name": "B", "email": "b@x.com", "age": 30, "status": "active"},
		{"name": "C", "email": "c@x.com", "age": 40, "status": "active"},
	} {
		ok, err := conn.Table("users").Insert(ctx, u)
		require.NoError(t, err)
		require.True(t, ok)
	}
}
