// Package fetch resolves account activity and schedules the bounded
// traversal of the transaction graph.
package fetch

import (
	"context"

	"solana-graph-explorer/internal/solana"
)

// Tier names which resolution path produced an activity.
type Tier string

const (
	// TierTransfers means the preferred token-transfer extraction produced results.
	TierTransfers Tier = "transfers"
	// TierHistory means the raw signature-history fallback was used.
	TierHistory Tier = "history"
	// TierEmpty means both tiers failed or returned nothing.
	TierEmpty Tier = "empty"
)

// Transfer is one value movement touching the resolved account.
// Amount is signed from the account's perspective: negative is outgoing.
type Transfer struct {
	Signature    string
	Counterparty string
	Amount       float64
	Mint         string // empty for native SOL
	Slot         int64
	BlockTime    int64
	Success      bool
}

// AccountActivity is the resolved activity for one account. Resolution
// never returns nil: an account with no observable activity yields an
// activity with TierEmpty.
type AccountActivity struct {
	Address    string
	Tier       Tier
	Transfers  []Transfer            // TierTransfers
	Signatures []solana.SignatureInfo // TierHistory
	// TotalTransactions is the signature count seen for the account,
	// regardless of tier.
	TotalTransactions int
}

// ActivitySource resolves activity for a single account.
type ActivitySource interface {
	Activity(ctx context.Context, address string) (*AccountActivity, error)
}

// ClientPool is the slice of the RPC pool the fetch layer needs.
type ClientPool interface {
	Connection(ctx context.Context) (solana.Client, error)
	ReportFailure(ctx context.Context, client solana.Client)
}
