// Package backend implements the per-request orchestrator: dispatch by
// packet code, pool/reply selection via match.Engine, attribute
// materialization via reply.Build, and dialog persistence.
package backend

import (
	"context"

	"go.uber.org/zap"

	"github.com/lion7/radiusd/internal/config"
	"github.com/lion7/radiusd/internal/dialogstore"
	"github.com/lion7/radiusd/internal/match"
	"github.com/lion7/radiusd/internal/pool"
	"github.com/lion7/radiusd/internal/reply"
	"github.com/lion7/radiusd/internal/request"
)

// Metrics is the subset of healthz.Metrics the orchestrator records to. An
// interface here keeps this package from importing prometheus directly.
type Metrics interface {
	PoolExhaustedInc(pool string)
	DialogWriteFailedInc()
}

const (
	codeAccessRequest  = 1
	codeAccountingReq  = 4
	codeAccessAccept   = 2
	codeAccessReject   = 3
	codeAccountingResp = 5
)

// Backend is the per-process orchestrator wiring pool allocation, match
// rules, and reply construction together.
type Backend struct {
	poolMatch  *match.Engine
	replyMatch struct {
		auth *match.Engine
		acct *match.Engine
	}
	authReplies map[string]config.AuthReply
	acctReplies map[string]config.AcctReply
	pools       map[string]*pool.Runtime
	store       *dialogstore.Store
	metrics     Metrics
	logger      *zap.Logger
}

// New wires a Backend from validated config, constructed pool runtimes,
// and an optional dialog store (nil disables persistence entirely). metrics
// may be nil, in which case no counters are recorded.
func New(cfg *config.Config, pools map[string]*pool.Runtime, store *dialogstore.Store, metrics Metrics, logger *zap.Logger) (*Backend, error) {
	poolMatch, err := match.NewEngine(cfg.PoolMatchRules)
	if err != nil {
		return nil, err
	}
	authMatch, err := match.NewEngine(cfg.ReplyMatchRules.Auth)
	if err != nil {
		return nil, err
	}
	acctMatch, err := match.NewEngine(cfg.ReplyMatchRules.Acct)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		poolMatch:   poolMatch,
		authReplies: cfg.ReplyDefinitions.Auth,
		acctReplies: cfg.ReplyDefinitions.Acct,
		pools:       pools,
		store:       store,
		metrics:     metrics,
		logger:      logger.Named("backend"),
	}
	b.replyMatch.auth = authMatch
	b.replyMatch.acct = acctMatch
	return b, nil
}

// HandleRequest dispatches req by packet code and, if a dialog store is
// configured, persists the (request, reply-view) pair synchronously within
// the request path before returning. Persistence runs for every packet
// code, not only the ones that produce a reply: CoA (43) and Disconnect
// (40) carry no reply of their own but still belong in the persistence
// key-selection table, so they fall through to the store block below with
// a zero-value (nil reply) result.
func (b *Backend) HandleRequest(ctx context.Context, req request.Packet, host string, port int) request.BackendResult {
	var result request.BackendResult

	switch req.Code() {
	case codeAccessRequest:
		result = b.handleAccessRequest(req)
	case codeAccountingReq:
		result = b.handleAccountingRequest(req)
	}

	if b.store != nil {
		token, err := b.store.StoreDialog(ctx, req, host, port, result.ReplyCode, result.ReplyAttributes)
		if err != nil {
			b.logger.Error("failed to store dialog", zap.Error(err))
			if b.metrics != nil {
				b.metrics.DialogWriteFailedInc()
			}
		} else {
			result.DialogToken = &token
		}
	}
	return result
}

func (b *Backend) handleAccessRequest(req request.Packet) request.BackendResult {
	poolName := b.poolMatch.Select(req, "default")
	p := b.pools[poolName]

	replyName := b.replyMatch.auth.Select(req, "default")
	def, ok := b.authReplies[replyName]
	if !ok {
		b.logger.Debug("no auth reply template matched", zap.String("reply", replyName))
		return request.BackendResult{}
	}

	var pools reply.Pools
	if p != nil {
		pools = poolAdapter{p}
	}
	attrs, err := reply.Build(req, def.Attributes.OrderedMap, pools)
	if err != nil {
		b.logger.Debug("directive evaluation failed", zap.Error(err))
		if b.metrics != nil && err.Error() == "IP Address in pool is exhausted" {
			b.metrics.PoolExhaustedInc(poolName)
		}
		code := uint8(codeAccessReject)
		return request.BackendResult{ReplyCode: &code, ReplyAttributes: attrs}
	}

	code := def.Code
	return request.BackendResult{ReplyCode: &code, ReplyAttributes: attrs}
}

func (b *Backend) handleAccountingRequest(req request.Packet) request.BackendResult {
	replyName := b.replyMatch.acct.Select(req, "default")
	def, ok := b.acctReplies[replyName]
	if !ok {
		b.logger.Debug("no acct reply template matched", zap.String("reply", replyName))
		return request.BackendResult{}
	}
	code := def.Code
	return request.BackendResult{ReplyCode: &code, ReplyAttributes: def.Attributes.OrderedMap.Clone()}
}

// poolAdapter adapts a resolved *pool.Runtime to reply.Pools. The backend
// only constructs one when the matched pool name actually resolved; a
// missing pool name is represented by a true nil reply.Pools interface,
// not a poolAdapter wrapping nil, so reply.Build's "pool missing" branch
// can tell the two cases apart.
type poolAdapter struct {
	p *pool.Runtime
}

func (a poolAdapter) AllocateIPv4() (string, bool)          { return a.p.AllocateIPv4() }
func (a poolAdapter) AllocateIPv6() (string, bool)          { return a.p.AllocateIPv6() }
func (a poolAdapter) AllocateIPv6Delegated() (string, bool) { return a.p.AllocateIPv6Delegated() }
