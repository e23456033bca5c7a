package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// RedisConditions stores each condition as JSON under <prefix>:alert:{id}, with the id set
// <prefix>:active_alerts and one index set per symbol <prefix>:alerts:symbol:{SYM}.
// Lua scripts keep the detail key and both indexes consistent.
type RedisConditions struct {
	client *redis.Client
	prefix string
}

func NewRedisConditions(client *redis.Client, prefix string) *RedisConditions {
	return &RedisConditions{client: client, prefix: prefix}
}

// luaPut
// KEYS[1]: detail key, KEYS[2]: active set, KEYS[3]: symbol index
// ARGV[1]: id, ARGV[2]: condition JSON, ARGV[3]: symbol index prefix
var luaPut = redis.NewScript(`
	local old = redis.call('GET', KEYS[1])
	if old then
		local oldSym = cjson.decode(old)["symbol"]
		local oldIdx = ARGV[3] .. oldSym
		if oldIdx ~= KEYS[3] then
			redis.call('SREM', oldIdx, ARGV[1])
		end
	end
	redis.call('SET', KEYS[1], ARGV[2])
	redis.call('SADD', KEYS[2], ARGV[1])
	redis.call('SADD', KEYS[3], ARGV[1])
	return 1
`)

// luaDelete
// KEYS[1]: detail key, KEYS[2]: active set
// ARGV[1]: id, ARGV[2]: symbol index prefix
var luaDelete = redis.NewScript(`
	local data = redis.call('GET', KEYS[1])
	redis.call('SREM', KEYS[2], ARGV[1])
	if not data then return 0 end
	local sym = cjson.decode(data)["symbol"]
	redis.call('SREM', ARGV[2] .. sym, ARGV[1])
	redis.call('DEL', KEYS[1])
	return 1
`)

func (r *RedisConditions) detailKey(id string) string { return r.prefix + ":alert:" + id }
func (r *RedisConditions) activeKey() string          { return r.prefix + ":active_alerts" }
func (r *RedisConditions) symbolPrefix() string       { return r.prefix + ":alerts:symbol:" }
func (r *RedisConditions) symbolKey(sym string) string {
	return r.symbolPrefix() + sym
}

func (r *RedisConditions) Get(ctx context.Context, id string) (*models.Condition, error) {
	data, err := r.client.Get(ctx, r.detailKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", models.ErrConditionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}
	var c models.Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode condition %s: %w", id, err)
	}
	return &c, nil
}

func (r *RedisConditions) Put(ctx context.Context, c *models.Condition) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("put condition: missing id")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode condition %s: %w", c.ID, err)
	}
	keys := []string{r.detailKey(c.ID), r.activeKey(), r.symbolKey(c.Symbol)}
	if err := luaPut.Run(ctx, r.client, keys, c.ID, data, r.symbolPrefix()).Err(); err != nil {
		return fmt.Errorf("redis put %s: %w", c.ID, err)
	}
	return nil
}

func (r *RedisConditions) Delete(ctx context.Context, id string) (bool, error) {
	n, err := luaDelete.Run(ctx, r.client, []string{r.detailKey(id), r.activeKey()}, id, r.symbolPrefix()).Int()
	if err != nil {
		return false, fmt.Errorf("redis delete %s: %w", id, err)
	}
	return n == 1, nil
}

func (r *RedisConditions) ListBySymbol(ctx context.Context, symbol string) ([]*models.Condition, error) {
	ids, err := r.client.SMembers(ctx, r.symbolKey(symbol)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", symbol, err)
	}
	return r.load(ctx, ids)
}

func (r *RedisConditions) ListAll(ctx context.Context) ([]*models.Condition, error) {
	ids, err := r.client.SMembers(ctx, r.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers active: %w", err)
	}
	return r.load(ctx, ids)
}

// load fetches details for ids in one MGET. Ids whose detail key is gone are skipped.
func (r *RedisConditions) load(ctx context.Context, ids []string) ([]*models.Condition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.detailKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([]*models.Condition, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var c models.Condition
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			return nil, fmt.Errorf("decode condition %s: %w", ids[i], err)
		}
		out = append(out, &c)
	}
	sortByCreated(out)
	return out, nil
}

var _ domrepo.ConditionPersistence = (*RedisConditions)(nil)
