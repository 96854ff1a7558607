package audit

import (
	"go.uber.org/zap"

	"ringkv/internal/address"
	"ringkv/internal/telemetry"
)

// Zap writes outcomes as structured log lines and counts coordinator
// outcomes in telemetry.
type Zap struct {
	log *zap.Logger
}

// NewZap returns a sink writing to logger.
func NewZap(logger *zap.Logger) *Zap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Zap{log: logger.Named("audit")}
}

func (z *Zap) outcome(op Op, success bool, node address.Address, coordinator bool, txn uint32, key, value string, withValue bool) {
	fields := []zap.Field{
		zap.Stringer("node", node),
		zap.String("op", op.String()),
		zap.Bool("success", success),
		zap.Bool("coordinator", coordinator),
		zap.Uint32("txn", txn),
		zap.String("key", key),
	}
	if withValue {
		fields = append(fields, zap.String("value", value))
	}
	if coordinator {
		telemetry.TxnOutcomes.WithLabelValues(op.String(), telemetry.Result(success)).Inc()
		z.log.Info("transaction resolved", fields...)
		return
	}
	z.log.Debug("replica outcome", fields...)
}

func (z *Zap) CreateSuccess(n address.Address, c bool, txn uint32, k, v string) {
	z.outcome(OpCreate, true, n, c, txn, k, v, true)
}

func (z *Zap) CreateFail(n address.Address, c bool, txn uint32, k, v string) {
	z.outcome(OpCreate, false, n, c, txn, k, v, true)
}

func (z *Zap) ReadSuccess(n address.Address, c bool, txn uint32, k, v string) {
	z.outcome(OpRead, true, n, c, txn, k, v, true)
}

func (z *Zap) ReadFail(n address.Address, c bool, txn uint32, k string) {
	z.outcome(OpRead, false, n, c, txn, k, "", false)
}

func (z *Zap) UpdateSuccess(n address.Address, c bool, txn uint32, k, v string) {
	z.outcome(OpUpdate, true, n, c, txn, k, v, true)
}

func (z *Zap) UpdateFail(n address.Address, c bool, txn uint32, k, v string) {
	z.outcome(OpUpdate, false, n, c, txn, k, v, true)
}

func (z *Zap) DeleteSuccess(n address.Address, c bool, txn uint32, k string) {
	z.outcome(OpDelete, true, n, c, txn, k, "", false)
}

func (z *Zap) DeleteFail(n address.Address, c bool, txn uint32, k string) {
	z.outcome(OpDelete, false, n, c, txn, k, "", false)
}

func (z *Zap) NodeAdded(n, added address.Address) {
	telemetry.MembershipEvents.WithLabelValues("added").Inc()
	z.log.Info("node added", zap.Stringer("node", n), zap.Stringer("member", added))
}

func (z *Zap) NodeRemoved(n, removed address.Address) {
	telemetry.MembershipEvents.WithLabelValues("removed").Inc()
	z.log.Info("node removed", zap.Stringer("node", n), zap.Stringer("member", removed))
}
