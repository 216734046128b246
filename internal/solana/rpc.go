package solana

import "context"

// Client defines the Solana RPC HTTP interface consumed by the pool and
// the fetch layer.
type Client interface {
	// GetHealth probes endpoint liveness. Returns nil when the node reports "ok".
	GetHealth(ctx context.Context) error

	// GetTransactionDetail retrieves a transaction by signature.
	// Returns (nil, nil) when the transaction is unknown to the node.
	GetTransactionDetail(ctx context.Context, signature string) (*TransactionDetail, error)

	// GetSignaturesForAddress retrieves signature history for an address,
	// newest first, with optional pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
}

// TransactionDetail is the validated shape of a getTransaction response.
// Absent or malformed upstream fields decode to zero values; the detail
// itself is nil only when the node does not know the signature.
type TransactionDetail struct {
	Signature      string
	Slot           int64
	BlockTime      int64 // Unix seconds; 0 when the node omits it
	Success        bool
	AccountKeys    []string
	BalanceChanges []BalanceChange
}

// BalanceChange is one account balance delta inside a transaction.
// Mint is empty for native SOL moves; Delta is in SOL or UI token units.
type BalanceChange struct {
	Address string
	Mint    string
	Delta   float64
}

// Participants returns the distinct non-empty account keys of the
// transaction in message order.
func (d *TransactionDetail) Participants() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(d.AccountKeys))
	out := make([]string, 0, len(d.AccountKeys))
	for _, key := range d.AccountKeys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
