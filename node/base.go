package node

import "log/slog"

// base carries the identity fields every stage shares.
type base struct {
	id      string
	typeTag string
	logger  *slog.Logger
}

func (b *base) ID() string   { return b.id }
func (b *base) Type() string { return b.typeTag }

func newBase(id, typeTag string, deps Dependencies) base {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		id:      id,
		typeTag: typeTag,
		logger:  logger.With("node", id, "type", typeTag),
	}
}
