package tenantdb_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botflow/engine/internal/tenantdb"
)

func withStore(t *testing.T, fn func(context.Context, *tenantdb.RedisStore)) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	fn(context.Background(), tenantdb.NewRedisStore(client, "test", "users"))
}

func TestInsertAndSelect(t *testing.T) {
	withStore(t, func(ctx context.Context, s *tenantdb.RedisStore) {
		id, err := s.Insert(ctx, "acme", "users", map[string]string{
			"name": "Ada",
			"role": "admin",
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		recs, err := s.Select(ctx, "acme", "users", nil)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, id, recs[0][tenantdb.IDField])
		assert.Equal(t, "Ada", recs[0]["name"])
	})
}

func TestSelectFiltered(t *testing.T) {
	withStore(t, func(ctx context.Context, s *tenantdb.RedisStore) {
		_, err := s.Insert(ctx, "acme", "users", map[string]string{
			"name": "Ada", "role": "admin",
		})
		require.NoError(t, err)
		_, err = s.Insert(ctx, "acme", "users", map[string]string{
			"name": "Grace", "role": "user",
		})
		require.NoError(t, err)

		expr := mustParse(t, "role = 'admin'")
		recs, err := s.Select(ctx, "acme", "users", expr)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Ada", recs[0]["name"])
	})
}

func TestUpdate(t *testing.T) {
	withStore(t, func(ctx context.Context, s *tenantdb.RedisStore) {
		id, err := s.Insert(ctx, "acme", "users", map[string]string{
			"name": "Ada", "role": "user",
		})
		require.NoError(t, err)

		n, err := s.Update(ctx, "acme", "users",
			mustParse(t, "name = 'Ada'"),
			map[string]string{"role": "admin", "id": "nope"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		recs, err := s.Select(ctx, "acme", "users", nil)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "admin", recs[0]["role"])
		assert.Equal(t, id, recs[0][tenantdb.IDField])
	})
}

func TestDelete(t *testing.T) {
	withStore(t, func(ctx context.Context, s *tenantdb.RedisStore) {
		for _, name := range []string{"Ada", "Grace", "Edsger"} {
			_, err := s.Insert(ctx, "acme", "users", map[string]string{
				"name": name,
			})
			require.NoError(t, err)
		}

		n, err := s.Delete(ctx, "acme", "users",
			mustParse(t, "name != 'Ada'"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		recs, err := s.Select(ctx, "acme", "users", nil)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Ada", recs[0]["name"])
	})
}

func TestCount(t *testing.T) {
	withStore(t, func(ctx context.Context, s *tenantdb.RedisStore) {
		for _, role := range []string{"admin", "user", "user"} {
			_, err := s.Insert(ctx, "acme", "users", map[string]string{
				"role": role,
			})
			require.NoError(t, err)
		}

		n, err := s.Count(ctx, "acme", "users",
			mustParse(t, "role = 'user'"))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.Count(ctx, "acme", "users", nil)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestTenantIsolation(t *testing.T) {
	withStore(t, func(ctx context.Context, s *tenantdb.RedisStore) {
		_, err := s.Insert(ctx, "acme", "users", map[string]string{
			"name": "Ada",
		})
		require.NoError(t, err)

		recs, err := s.Select(ctx, "globex", "users", nil)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestBadTableName(t *testing.T) {
	withStore(t, func(ctx context.Context, s *tenantdb.RedisStore) {
		for _, table := range []string{
			"", "Users", "1users", "users; drop", "users-prod",
		} {
			_, err := s.Insert(ctx, "acme", table, nil)
			assert.ErrorIs(t, err, tenantdb.ErrBadTableName,
				"table %q", table)
		}
	})
}

func TestTableNotAllowlisted(t *testing.T) {
	withStore(t, func(ctx context.Context, s *tenantdb.RedisStore) {
		_, err := s.Insert(ctx, "acme", "secrets", map[string]string{
			"key": "value",
		})
		assert.ErrorIs(t, err, tenantdb.ErrTableNotAllowed)

		_, err = s.Select(ctx, "acme", "secrets", nil)
		assert.ErrorIs(t, err, tenantdb.ErrTableNotAllowed)
	})
}
