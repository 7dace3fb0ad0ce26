// Package dialogstore persists the (request, reply) dialog for each
// processed packet to Redis with a TTL. The on-wire key and value format
// is an external contract: token construction, JSON payload shape, and
// the right-push-then-expire write sequence must match byte for byte what
// downstream inspection tooling expects.
package dialogstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lion7/radiusd/internal/config"
	"github.com/lion7/radiusd/internal/request"
)

const userPasswordAttr = "User-Password"
const encryptedValuePlaceholder = "encryptedValue"

// Store writes dialogs to Redis. Only the redis.Cmdable surface is
// required, so tests can swap in any compatible fake.
type Store struct {
	client  redis.Cmdable
	prefix  string
	keysFor map[int][]string
	expiry  time.Duration
	logger  *zap.Logger
}

// New builds a Store from the validated redis_storage config section.
func New(client redis.Cmdable, cfg config.RedisStorageConfig, expiry time.Duration, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		prefix: cfg.Prefix,
		keysFor: map[int][]string{
			1:  cfg.Auth,
			4:  cfg.Acct,
			43: cfg.CoA,
			40: cfg.Disc,
		},
		expiry: expiry,
		logger: logger.Named("dialogstore"),
	}
}

// StoreDialog builds the dialog key for req, serializes the
// (request, reply) pair, and writes it to Redis: RPush onto the key's
// list, then reset the key's TTL, both issued as one pipeline. reply may
// be nil, meaning no reply was sent. It returns the token used as the
// Redis key.
func (s *Store) StoreDialog(ctx context.Context, req request.Packet, host string, port int, replyCode *uint8, replyAttrs *request.OrderedMap) (string, error) {
	token := s.BuildToken(req, replyAttrs)

	dialog := request.Dialog{
		Request: snapshotRequest(req, host, port),
		Reply:   snapshotReply(req, replyCode, replyAttrs),
	}

	payload, err := json.Marshal(dialog)
	if err != nil {
		return token, fmt.Errorf("marshaling dialog: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, token, payload)
	pipe.Expire(ctx, token, s.expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to persist dialog", zap.String("token", token), zap.Error(err))
		return token, fmt.Errorf("persisting dialog %s: %w", token, err)
	}
	return token, nil
}

// BuildToken is a pure function of (prefix, keys-for-code, request,
// reply-attrs): "<prefix><part>__<part>__..." built from the
// attribute-name list selected by the request's packet code.
func (s *Store) BuildToken(req request.Packet, replyAttrs *request.OrderedMap) string {
	keys := s.keysFor[req.Code()]
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, tokenPart(key, req, replyAttrs))
	}
	if len(parts) == 0 {
		return s.prefix
	}
	token := s.prefix
	for i, p := range parts {
		if i == 0 {
			token += p
		} else {
			token += "__" + p
		}
	}
	return token
}

func tokenPart(key string, req request.Packet, replyAttrs *request.OrderedMap) string {
	switch key {
	case "code":
		return strconv.Itoa(req.Code())
	case "id":
		return strconv.Itoa(req.ID())
	}
	if v, ok := request.First(req, key); ok {
		return v
	}
	if replyAttrs != nil {
		if v, ok := replyAttrs.Get(key); ok {
			return request.String(v)
		}
	}
	return ""
}

func snapshotRequest(req request.Packet, host string, port int) request.PacketSnapshot {
	code := req.Code()
	id := req.ID()
	attrs := make(map[string]any)
	for _, name := range req.Names() {
		values := req.Values(name)
		attrs[name] = snapshotValue(name, values)
	}
	return request.PacketSnapshot{
		Code:  &code,
		ID:    &id,
		Host:  host,
		Port:  port,
		Attrs: attrs,
	}
}

func snapshotReply(req request.Packet, replyCode *uint8, replyAttrs *request.OrderedMap) request.PacketSnapshot {
	now := time.Now()
	snap := request.PacketSnapshot{
		TS:    now.UnixMilli(),
		TSStr: now.Format("02.01.2006, 15:04:05"),
	}
	if replyCode == nil || replyAttrs == nil {
		return snap
	}
	code := int(*replyCode)
	id := req.ID()
	snap.Code = &code
	snap.ID = &id
	attrs := make(map[string]any, replyAttrs.Len())
	for _, name := range replyAttrs.Keys() {
		v, _ := replyAttrs.Get(name)
		attrs[name] = snapshotScalar(name, v)
	}
	snap.Attrs = attrs
	return snap
}

// snapshotValue collapses a multi-value request attribute to the dialog
// JSON shape: a scalar when there is exactly one value, a list otherwise.
// User-Password is replaced with the literal "encryptedValue" regardless
// of value count, so it never appears in clear in the persisted payload.
func snapshotValue(name string, values []string) any {
	if name == userPasswordAttr {
		return encryptedValuePlaceholder
	}
	if len(values) == 1 {
		return values[0]
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func snapshotScalar(name string, v any) any {
	if name == userPasswordAttr {
		return encryptedValuePlaceholder
	}
	switch t := v.(type) {
	case []byte:
		return hex.EncodeToString(t)
	default:
		return t
	}
}
