// Package redisstore is a queue.Store on Redis. Conditional writes are Lua
// scripts that compare the stored bytes before writing, so any number of
// processes can share one queue.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "walkin:"

// createScript stores a new value unless the key exists and indexes it.
// KEYS: value, index. ARGV: value, score, member.
var createScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1`)

// swapScript replaces a value only if it still holds the bytes the caller
// read, optionally moving the member between two indexes.
// KEYS: value [, fromIndex, toIndex]. ARGV: old, new [, score, member].
var swapScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return -1 end
if cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2])
if #KEYS == 3 and KEYS[2] ~= KEYS[3] then
  redis.call('ZREM', KEYS[2], ARGV[4])
  redis.call('ZADD', KEYS[3], ARGV[3], ARGV[4])
end
return 1`)

// counterScript swaps a numeric counter. KEYS: counter. ARGV: prev, next.
var counterScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur ~= tonumber(ARGV[1]) then return 0 end
redis.call('SET', KEYS[1], ARGV[2])
return 1`)

// Store implements queue.Store.
type Store struct {
	rdb    redis.Cmdable
	prefix string
}

var _ queue.Store = (*Store)(nil)

// New returns a store over rdb; an empty prefix uses DefaultPrefix.
func New(rdb redis.Cmdable, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) entryKey(id string) string       { return s.prefix + "entry:" + id }
func (s *Store) indexKey(st queue.Status) string { return s.prefix + "idx:" + string(st) }
func (s *Store) counterKey(name string) string   { return s.prefix + "ctr:" + name }
func (s *Store) sessionKey(id string) string     { return s.prefix + "session:" + id }
func (s *Store) sessionIndexKey() string         { return s.prefix + "sessions" }

func score(position int64) string    { return strconv.FormatInt(position, 10) }
func expiryScore(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return queue.Transient("redis "+op, err)
}

func (s *Store) Get(ctx context.Context, id string) (queue.Entry, error) {
	e, _, err := s.load(ctx, id)
	return e, err
}

func (s *Store) load(ctx context.Context, id string) (queue.Entry, string, error) {
	raw, err := s.rdb.Get(ctx, s.entryKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return queue.Entry{}, "", queue.ErrNotFound
	}
	if err != nil {
		return queue.Entry{}, "", classify("get", err)
	}
	var e queue.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return queue.Entry{}, "", fmt.Errorf("decode entry %s: %w", id, err)
	}
	return e, raw, nil
}

func (s *Store) Query(ctx context.Context, f queue.Filter) ([]queue.Entry, error) {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = queue.Statuses
	}
	stop := int64(-1)
	if f.Limit > 0 {
		stop = int64(f.Limit - 1)
	}
	var out []queue.Entry
	for _, st := range statuses {
		ids, err := s.rdb.ZRange(ctx, s.indexKey(st), 0, stop).Result()
		if err != nil {
			return nil, classify("zrange", err)
		}
		if len(ids) == 0 {
			continue
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.entryKey(id)
		}
		vals, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, classify("mget", err)
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var e queue.Entry
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				return nil, fmt.Errorf("decode entry: %w", err)
			}
			if e.Status == st {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, e queue.Entry) (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}
	n, err := createScript.Run(ctx, s.rdb,
		[]string{s.entryKey(e.ID), s.indexKey(e.Status)},
		string(raw), score(e.Position), e.ID,
	).Int()
	if err != nil {
		return "", classify("create", err)
	}
	if n == 0 {
		return "", queue.ErrAlreadyExists
	}
	return e.ID, nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected queue.Status, p queue.Patch) (queue.Entry, error) {
	cur, raw, err := s.load(ctx, id)
	if err != nil {
		return queue.Entry{}, err
	}
	if cur.Status != expected {
		return queue.Entry{}, queue.ErrConflict
	}
	next := p.Apply(cur)
	nextRaw, err := json.Marshal(next)
	if err != nil {
		return queue.Entry{}, fmt.Errorf("encode entry: %w", err)
	}
	n, err := swapScript.Run(ctx, s.rdb,
		[]string{s.entryKey(id), s.indexKey(cur.Status), s.indexKey(next.Status)},
		raw, string(nextRaw), score(next.Position), id,
	).Int()
	if err != nil {
		return queue.Entry{}, classify("conditional update", err)
	}
	switch n {
	case -1:
		return queue.Entry{}, queue.ErrNotFound
	case 0:
		return queue.Entry{}, queue.ErrConflict
	}
	return next, nil
}

func (s *Store) ReadCounter(ctx context.Context, name string) (int64, error) {
	v, err := s.rdb.Get(ctx, s.counterKey(name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("read counter", err)
	}
	return v, nil
}

func (s *Store) CompareAndSwapCounter(ctx context.Context, name string, prev, next int64) (bool, error) {
	n, err := counterScript.Run(ctx, s.rdb, []string{s.counterKey(name)}, prev, next).Int()
	if err != nil {
		return false, classify("counter swap", err)
	}
	return n == 1, nil
}

func (s *Store) CreateSession(ctx context.Context, sess queue.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	n, err := createScript.Run(ctx, s.rdb,
		[]string{s.sessionKey(sess.ID), s.sessionIndexKey()},
		string(raw), expiryScore(sess.ExpiresAt), sess.ID,
	).Int()
	if err != nil {
		return classify("create session", err)
	}
	if n == 0 {
		return queue.ErrAlreadyExists
	}
	return nil
}

func (s *Store) loadSession(ctx context.Context, id string) (queue.Session, string, error) {
	raw, err := s.rdb.Get(ctx, s.sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return queue.Session{}, "", queue.ErrNotFound
	}
	if err != nil {
		return queue.Session{}, "", classify("get session", err)
	}
	var sess queue.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return queue.Session{}, "", fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, raw, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (queue.Session, error) {
	sess, _, err := s.loadSession(ctx, id)
	return sess, err
}

func (s *Store) SetSessionTicket(ctx context.Context, id string, expected, value bool) (queue.Session, error) {
	sess, raw, err := s.loadSession(ctx, id)
	if err != nil {
		return queue.Session{}, err
	}
	if sess.HasGeneratedTicket != expected {
		return queue.Session{}, queue.ErrConflict
	}
	sess.HasGeneratedTicket = value
	next, err := json.Marshal(sess)
	if err != nil {
		return queue.Session{}, fmt.Errorf("encode session: %w", err)
	}
	n, err := swapScript.Run(ctx, s.rdb, []string{s.sessionKey(id)}, raw, string(next)).Int()
	if err != nil {
		return queue.Session{}, classify("session swap", err)
	}
	switch n {
	case -1:
		return queue.Session{}, queue.ErrNotFound
	case 0:
		return queue.Session{}, queue.ErrConflict
	}
	return sess, nil
}

func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.sessionIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + expiryScore(now),
	}).Result()
	if err != nil {
		return 0, classify("range sessions", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
		members[i] = id
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return 0, classify("delete sessions", err)
	}
	if err := s.rdb.ZRem(ctx, s.sessionIndexKey(), members...).Err(); err != nil {
		return 0, classify("unindex sessions", err)
	}
	return len(ids), nil
}
