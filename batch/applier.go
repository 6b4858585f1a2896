package batch

import (
	"context"

	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/charge"
)

// FullSettlementApplier settles each due charge in full; a charge
// already marked paid is left untouched. Account balance checks belong
// to the ledger that owns the accounts, which sits outside this engine;
// deployments integrating one provide their own Applier and fail items
// the balance cannot cover.
type FullSettlementApplier struct{}

var _ Applier = FullSettlementApplier{}

func (FullSettlementApplier) ApplyDue(_ context.Context, c *charge.Charge, asOf calendar.Date) error {
	if c.NotPaidOff() {
		allocator := charge.SettlementAllocator{}
		_, err := allocator.Pay(c, c.AmountOutstanding, asOf)
		return err
	}
	return nil
}
