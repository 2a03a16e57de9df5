package ledger

import (
	"context"

	"github.com/ruteri/collection-factory/interfaces"
)

// Router sends transfers to eth-implicit recipients through Eth and all others through Named.
type Router struct {
	Named interfaces.Transferer
	Eth   interfaces.Transferer
}

func (r *Router) Transfer(ctx context.Context, from, to interfaces.AccountID, amount interfaces.Balance) error {
	if to.IsEthImplicit() && r.Eth != nil {
		return r.Eth.Transfer(ctx, from, to, amount)
	}
	return r.Named.Transfer(ctx, from, to, amount)
}
