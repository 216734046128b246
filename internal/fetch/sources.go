package fetch

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"solana-graph-explorer/internal/ratelimit"
	"solana-graph-explorer/internal/solana"
)

// Resolution limits.
const (
	// DefaultSignatureLimit is how many recent signatures are pulled per account.
	DefaultSignatureLimit = 50

	// DefaultDetailLimit bounds how many transactions the transfer tier
	// inspects per account.
	DefaultDetailLimit = 20

	// DefaultTopCounterparties keeps only the highest-volume counterparties
	// of an account in the transfer tier.
	DefaultTopCounterparties = 10
)

// TokenTransferSource is the preferred activity tier: it inspects the
// account's recent transactions and extracts balance movements, keeping
// only the top counterparties by absolute volume.
type TokenTransferSource struct {
	pool        ClientPool
	sigLimit    int
	detailLimit int
	topN        int
	retry       ratelimit.RetryConfig
	log         *zap.Logger
}

// NewTokenTransferSource creates a transfer-tier source over the pool.
func NewTokenTransferSource(pool ClientPool, logger *zap.Logger) *TokenTransferSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenTransferSource{
		pool:        pool,
		sigLimit:    DefaultSignatureLimit,
		detailLimit: DefaultDetailLimit,
		topN:        DefaultTopCounterparties,
		retry:       ratelimit.RetryConfig{Logger: logger},
		log:         logger,
	}
}

var _ ActivitySource = (*TokenTransferSource)(nil)

// Activity resolves the account's transfer activity.
func (s *TokenTransferSource) Activity(ctx context.Context, address string) (*AccountActivity, error) {
	sigs, err := fetchSignatures(ctx, s.pool, s.retry, address, s.sigLimit)
	if err != nil {
		return nil, fmt.Errorf("transfer tier signatures for %s: %w", address, err)
	}

	activity := &AccountActivity{
		Address:           address,
		Tier:              TierTransfers,
		TotalTransactions: len(sigs),
	}

	inspected := 0
	for _, sig := range sigs {
		if inspected >= s.detailLimit {
			break
		}
		inspected++

		detail, err := fetchDetail(ctx, s.pool, s.retry, sig.Signature)
		if err != nil {
			s.log.Debug("transaction detail failed, skipping",
				zap.String("signature", sig.Signature),
				zap.Error(err))
			continue
		}
		if detail == nil {
			continue
		}
		activity.Transfers = append(activity.Transfers, extractTransfers(detail, address)...)
	}

	activity.Transfers = topByVolume(activity.Transfers, s.topN)
	return activity, nil
}

// extractTransfers turns a transaction's balance changes into transfers
// from the account's perspective. The counterparty is the address whose
// delta on the same mint has the opposite sign and the closest magnitude.
func extractTransfers(detail *solana.TransactionDetail, address string) []Transfer {
	var out []Transfer
	for _, bc := range detail.BalanceChanges {
		if bc.Address != address || bc.Delta == 0 {
			continue
		}

		counterparty := ""
		best := 0.0
		for _, other := range detail.BalanceChanges {
			if other.Address == address || other.Mint != bc.Mint {
				continue
			}
			if (bc.Delta < 0) == (other.Delta < 0) {
				continue
			}
			mag := abs(other.Delta)
			if mag > best {
				best = mag
				counterparty = other.Address
			}
		}
		if counterparty == "" {
			continue
		}

		out = append(out, Transfer{
			Signature:    detail.Signature,
			Counterparty: counterparty,
			Amount:       bc.Delta,
			Mint:         bc.Mint,
			Slot:         detail.Slot,
			BlockTime:    detail.BlockTime,
			Success:      detail.Success,
		})
	}
	return out
}

// topByVolume keeps the transfers belonging to the n counterparties with
// the highest absolute volume, preserving discovery order.
func topByVolume(transfers []Transfer, n int) []Transfer {
	if n <= 0 || len(transfers) == 0 {
		return transfers
	}

	volume := make(map[string]float64)
	for _, t := range transfers {
		volume[t.Counterparty] += abs(t.Amount)
	}
	if len(volume) <= n {
		return transfers
	}

	parties := make([]string, 0, len(volume))
	for p := range volume {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool {
		if volume[parties[i]] != volume[parties[j]] {
			return volume[parties[i]] > volume[parties[j]]
		}
		return parties[i] < parties[j]
	})

	keep := make(map[string]struct{}, n)
	for _, p := range parties[:n] {
		keep[p] = struct{}{}
	}

	var out []Transfer
	for _, t := range transfers {
		if _, ok := keep[t.Counterparty]; ok {
			out = append(out, t)
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// HistorySource is the fallback tier: raw signature history with no
// transfer extraction.
type HistorySource struct {
	pool     ClientPool
	sigLimit int
	retry    ratelimit.RetryConfig
}

// NewHistorySource creates a history-tier source over the pool.
func NewHistorySource(pool ClientPool, logger *zap.Logger) *HistorySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistorySource{
		pool:     pool,
		sigLimit: DefaultSignatureLimit,
		retry:    ratelimit.RetryConfig{Logger: logger},
	}
}

var _ ActivitySource = (*HistorySource)(nil)

// Activity resolves the account's raw signature history.
func (s *HistorySource) Activity(ctx context.Context, address string) (*AccountActivity, error) {
	sigs, err := fetchSignatures(ctx, s.pool, s.retry, address, s.sigLimit)
	if err != nil {
		return nil, fmt.Errorf("history tier signatures for %s: %w", address, err)
	}

	return &AccountActivity{
		Address:           address,
		Tier:              TierHistory,
		Signatures:        sigs,
		TotalTransactions: len(sigs),
	}, nil
}

// fetchSignatures pulls signature history through the pool, retrying on
// rate-limit pressure and reporting endpoint failures back to the pool.
func fetchSignatures(ctx context.Context, pool ClientPool, retry ratelimit.RetryConfig, address string, limit int) ([]solana.SignatureInfo, error) {
	var sigs []solana.SignatureInfo
	err := ratelimit.Do(ctx, retry, address, func() error {
		conn, err := pool.Connection(ctx)
		if err != nil {
			return err
		}
		sigs, err = conn.GetSignaturesForAddress(ctx, address, &solana.SignaturesOpts{Limit: limit})
		if err != nil {
			pool.ReportFailure(ctx, conn)
			return err
		}
		return nil
	})
	return sigs, err
}

// fetchDetail pulls one transaction through the pool.
func fetchDetail(ctx context.Context, pool ClientPool, retry ratelimit.RetryConfig, signature string) (*solana.TransactionDetail, error) {
	var detail *solana.TransactionDetail
	err := ratelimit.Do(ctx, retry, signature, func() error {
		conn, err := pool.Connection(ctx)
		if err != nil {
			return err
		}
		detail, err = conn.GetTransactionDetail(ctx, signature)
		if err != nil {
			pool.ReportFailure(ctx, conn)
			return err
		}
		return nil
	})
	return detail, err
}

// TieredResolver chains the transfer tier and the history fallback.
// Resolve never returns nil: total failure yields a TierEmpty activity.
type TieredResolver struct {
	transfers ActivitySource
	history   ActivitySource
	log       *zap.Logger
}

// NewTieredResolver creates a resolver from the two tiers.
func NewTieredResolver(transfers, history ActivitySource, logger *zap.Logger) *TieredResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredResolver{transfers: transfers, history: history, log: logger}
}

// Resolve resolves the account's activity, preferring the transfer tier.
func (r *TieredResolver) Resolve(ctx context.Context, address string) *AccountActivity {
	activity, err := r.transfers.Activity(ctx, address)
	if err == nil && len(activity.Transfers) > 0 {
		return activity
	}
	if err != nil {
		r.log.Debug("transfer tier failed, falling back to history",
			zap.String("address", address),
			zap.Error(err))
	}

	// Keep the signature count the transfer tier saw in case the
	// fallback fails too.
	total := 0
	if activity != nil {
		total = activity.TotalTransactions
	}

	fallback, err := r.history.Activity(ctx, address)
	if err != nil {
		r.log.Warn("history tier failed, resolving empty",
			zap.String("address", address),
			zap.Error(err))
		return &AccountActivity{
			Address:           address,
			Tier:              TierEmpty,
			TotalTransactions: total,
		}
	}
	return fallback
}
