package pipeline

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
)

// Bridge is the sole recovery point for errors raised inside the chain or
// the terminal handler: it redirects them into the host's user-exception
// facility and coerces the result into a normal response.
type Bridge struct {
	host   types.HostApp
	logger types.Logger
}

func NewBridge(host types.HostApp, logger types.Logger) *Bridge {
	return &Bridge{
		host:   host,
		logger: logger,
	}
}

// Resolve hands err to the host's registered error handlers. A match
// produces an ordinary response and returns nil; no match returns the error
// unchanged so it propagates toward the top-level fault boundary.
func (b *Bridge) Resolve(ctx *types.RequestCtx, err error) error {
	rv, herr := b.host.HandleUserException(ctx, err)
	if herr != nil {
		return herr
	}

	b.logger.Debug("Chain error converted to response",
		zap.Error(err),
		zap.ByteString("path", ctx.Path()))

	return b.host.MakeResponse(ctx, rv)
}
