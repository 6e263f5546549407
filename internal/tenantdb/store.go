package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/botflow/engine/pkg/api"
	"github.com/botflow/engine/pkg/util"
)

type (
	// Store is the per-tenant datastore behind database nodes. Every
	// operation is scoped to one tenant's namespace; tables are created
	// implicitly on first insert
	Store interface {
		Select(
			ctx context.Context, tenantID api.TenantID, table string,
			filter Expr,
		) ([]Record, error)
		Insert(
			ctx context.Context, tenantID api.TenantID, table string,
			values map[string]string,
		) (string, error)
		Update(
			ctx context.Context, tenantID api.TenantID, table string,
			filter Expr, values map[string]string,
		) (int, error)
		Delete(
			ctx context.Context, tenantID api.TenantID, table string,
			filter Expr,
		) (int, error)
		Count(
			ctx context.Context, tenantID api.TenantID, table string,
			filter Expr,
		) (int, error)
	}

	// Record is one stored row. The "id" field is assigned on insert
	Record map[string]string

	// RedisStore keeps each record in a hash with a per-table set indexing
	// the record IDs. Only allowlisted tables are reachable
	RedisStore struct {
		client *redis.Client
		prefix string
		tables util.Set[string]
	}
)

// IDField is the generated primary key present on every record
const IDField = "id"

var (
	ErrBadTableName    = errors.New("invalid table name")
	ErrTableNotAllowed = errors.New("table not in allowlist")

	tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	_ Store = (*RedisStore)(nil)
)

// NewRedisStore creates a tenant datastore on the given client. All keys
// are placed under the provided prefix. Only the named tables are
// reachable; operations against any other table are rejected
func NewRedisStore(
	client *redis.Client, prefix string, tables ...string,
) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		tables: util.SetOf(tables...),
	}
}

// Select returns the records matching the filter, ordered by ID
func (s *RedisStore) Select(
	ctx context.Context, tenantID api.TenantID, table string, filter Expr,
) ([]Record, error) {
	return s.scan(ctx, tenantID, table, filter)
}

// Insert stores a new record and returns its generated ID
func (s *RedisStore) Insert(
	ctx context.Context, tenantID api.TenantID, table string,
	values map[string]string,
) (string, error) {
	if err := s.checkTable(table); err != nil {
		return "", err
	}

	id := uuid.NewString()
	rec := make(map[string]string, len(values)+1)
	for k, v := range values {
		rec[k] = v
	}
	rec[IDField] = id

	key := s.recordKey(tenantID, table, id)
	if err := s.client.HSet(ctx, key, rec).Err(); err != nil {
		return "", err
	}
	idx := s.indexKey(tenantID, table)
	if err := s.client.SAdd(ctx, idx, id).Err(); err != nil {
		return "", err
	}
	return id, nil
}

// Update applies the values to every matching record and returns how many
// were changed
func (s *RedisStore) Update(
	ctx context.Context, tenantID api.TenantID, table string, filter Expr,
	values map[string]string,
) (int, error) {
	matched, err := s.scan(ctx, tenantID, table, filter)
	if err != nil {
		return 0, err
	}

	upd := make(map[string]string, len(values))
	for k, v := range values {
		if k == IDField {
			continue
		}
		upd[k] = v
	}
	if len(upd) == 0 {
		return len(matched), nil
	}

	for _, rec := range matched {
		key := s.recordKey(tenantID, table, rec[IDField])
		if err := s.client.HSet(ctx, key, upd).Err(); err != nil {
			return 0, err
		}
	}
	return len(matched), nil
}

// Delete removes every matching record and returns how many were removed
func (s *RedisStore) Delete(
	ctx context.Context, tenantID api.TenantID, table string, filter Expr,
) (int, error) {
	matched, err := s.scan(ctx, tenantID, table, filter)
	if err != nil {
		return 0, err
	}

	idx := s.indexKey(tenantID, table)
	for _, rec := range matched {
		id := rec[IDField]
		if err := s.client.Del(
			ctx, s.recordKey(tenantID, table, id),
		).Err(); err != nil {
			return 0, err
		}
		if err := s.client.SRem(ctx, idx, id).Err(); err != nil {
			return 0, err
		}
	}
	return len(matched), nil
}

// Count returns how many records match the filter
func (s *RedisStore) Count(
	ctx context.Context, tenantID api.TenantID, table string, filter Expr,
) (int, error) {
	matched, err := s.scan(ctx, tenantID, table, filter)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *RedisStore) scan(
	ctx context.Context, tenantID api.TenantID, table string, filter Expr,
) ([]Record, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = matchAll{}
	}

	ids, err := s.client.SMembers(
		ctx, s.indexKey(tenantID, table),
	).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	var res []Record
	for _, id := range ids {
		fields, err := s.client.HGetAll(
			ctx, s.recordKey(tenantID, table, id),
		).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		rec := Record(fields)
		if filter.Match(rec) {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (s *RedisStore) recordKey(
	tenantID api.TenantID, table, id string,
) string {
	return fmt.Sprintf("%s:db:%s:%s:%s", s.prefix, tenantID, table, id)
}

func (s *RedisStore) indexKey(tenantID api.TenantID, table string) string {
	return fmt.Sprintf("%s:db:%s:%s", s.prefix, tenantID, table)
}

func (s *RedisStore) checkTable(table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("%w: %s", ErrBadTableName, table)
	}
	if !s.tables.Contains(table) {
		return fmt.Errorf("%w: %s", ErrTableNotAllowed, table)
	}
	return nil
}
