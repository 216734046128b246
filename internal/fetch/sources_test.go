package fetch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-graph-explorer/internal/solana"
)

// fakeRPC implements solana.Client over canned responses.
type fakeRPC struct {
	sigs    map[string][]solana.SignatureInfo
	details map[string]*solana.TransactionDetail
	sigErr  error
}

func (f *fakeRPC) GetHealth(context.Context) error { return nil }

func (f *fakeRPC) GetTransactionDetail(_ context.Context, signature string) (*solana.TransactionDetail, error) {
	return f.details[signature], nil
}

func (f *fakeRPC) GetSignaturesForAddress(_ context.Context, address string, _ *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if f.sigErr != nil {
		return nil, f.sigErr
	}
	return f.sigs[address], nil
}

// fakePool hands out a single client and counts failure reports.
type fakePool struct {
	client   solana.Client
	connErr  error
	failures int
}

func (p *fakePool) Connection(context.Context) (solana.Client, error) {
	if p.connErr != nil {
		return nil, p.connErr
	}
	return p.client, nil
}

func (p *fakePool) ReportFailure(context.Context, solana.Client) { p.failures++ }

func TestTokenTransferSourceExtractsCounterparties(t *testing.T) {
	rpc := &fakeRPC{
		sigs: map[string][]solana.SignatureInfo{
			acctA: {{Signature: "sig1", Slot: 100}},
		},
		details: map[string]*solana.TransactionDetail{
			"sig1": {
				Signature: "sig1",
				Slot:      100,
				BlockTime: 1700000000,
				Success:   true,
				BalanceChanges: []solana.BalanceChange{
					{Address: acctA, Delta: -2.5},
					{Address: acctB, Delta: 2.5},
				},
			},
		},
	}
	source := NewTokenTransferSource(&fakePool{client: rpc}, nil)

	activity, err := source.Activity(context.Background(), acctA)
	require.NoError(t, err)

	assert.Equal(t, TierTransfers, activity.Tier)
	assert.Equal(t, 1, activity.TotalTransactions)
	require.Len(t, activity.Transfers, 1)
	tr := activity.Transfers[0]
	assert.Equal(t, acctB, tr.Counterparty)
	assert.Equal(t, -2.5, tr.Amount)
	assert.Empty(t, tr.Mint)
}

func TestTokenTransferSourceMatchesMint(t *testing.T) {
	rpc := &fakeRPC{
		sigs: map[string][]solana.SignatureInfo{
			acctA: {{Signature: "sig1"}},
		},
		details: map[string]*solana.TransactionDetail{
			"sig1": {
				Signature: "sig1",
				Success:   true,
				BalanceChanges: []solana.BalanceChange{
					{Address: acctA, Mint: acctC, Delta: 100},
					// Opposite sign but wrong mint: not a counterparty.
					{Address: acctD, Delta: -100},
					{Address: acctB, Mint: acctC, Delta: -100},
				},
			},
		},
	}
	source := NewTokenTransferSource(&fakePool{client: rpc}, nil)

	activity, err := source.Activity(context.Background(), acctA)
	require.NoError(t, err)

	require.Len(t, activity.Transfers, 1)
	assert.Equal(t, acctB, activity.Transfers[0].Counterparty)
	assert.Equal(t, acctC, activity.Transfers[0].Mint)
}

func TestTokenTransferSourceSkipsUnknownDetails(t *testing.T) {
	rpc := &fakeRPC{
		sigs: map[string][]solana.SignatureInfo{
			acctA: {{Signature: "sig1"}, {Signature: "sig2"}},
		},
		details: map[string]*solana.TransactionDetail{
			// sig1 unknown to the node.
			"sig2": {
				Signature: "sig2",
				Success:   true,
				BalanceChanges: []solana.BalanceChange{
					{Address: acctA, Delta: 1},
					{Address: acctB, Delta: -1},
				},
			},
		},
	}
	source := NewTokenTransferSource(&fakePool{client: rpc}, nil)

	activity, err := source.Activity(context.Background(), acctA)
	require.NoError(t, err)

	assert.Equal(t, 2, activity.TotalTransactions)
	assert.Len(t, activity.Transfers, 1)
}

func TestTopByVolume(t *testing.T) {
	transfers := []Transfer{
		{Counterparty: "x", Amount: 1},
		{Counterparty: "y", Amount: -50},
		{Counterparty: "x", Amount: 2},
		{Counterparty: "z", Amount: 10},
	}

	kept := topByVolume(transfers, 2)

	// y (50) and z (10) outrank x (3); order is preserved.
	require.Len(t, kept, 2)
	assert.Equal(t, "y", kept[0].Counterparty)
	assert.Equal(t, "z", kept[1].Counterparty)
}

func TestHistorySource(t *testing.T) {
	rpc := &fakeRPC{
		sigs: map[string][]solana.SignatureInfo{
			acctA: {{Signature: "sig1"}, {Signature: "sig2", Err: map[string]any{"InstructionError": []any{}}}},
		},
	}
	source := NewHistorySource(&fakePool{client: rpc}, nil)

	activity, err := source.Activity(context.Background(), acctA)
	require.NoError(t, err)

	assert.Equal(t, TierHistory, activity.Tier)
	assert.Equal(t, 2, activity.TotalTransactions)
	require.Len(t, activity.Signatures, 2)
	assert.True(t, activity.Signatures[0].Succeeded())
	assert.False(t, activity.Signatures[1].Succeeded())
}

func TestSourceReportsEndpointFailure(t *testing.T) {
	pool := &fakePool{client: &fakeRPC{sigErr: errors.New("boom")}}
	source := NewHistorySource(pool, nil)

	_, err := source.Activity(context.Background(), acctA)
	require.Error(t, err)
	assert.Equal(t, 1, pool.failures)
}

func TestTieredResolverPrefersTransfers(t *testing.T) {
	rpc := &fakeRPC{
		sigs: map[string][]solana.SignatureInfo{
			acctA: {{Signature: "sig1"}},
		},
		details: map[string]*solana.TransactionDetail{
			"sig1": {
				Signature: "sig1",
				Success:   true,
				BalanceChanges: []solana.BalanceChange{
					{Address: acctA, Delta: -1},
					{Address: acctB, Delta: 1},
				},
			},
		},
	}
	pool := &fakePool{client: rpc}
	resolver := NewTieredResolver(NewTokenTransferSource(pool, nil), NewHistorySource(pool, nil), nil)

	activity := resolver.Resolve(context.Background(), acctA)

	require.NotNil(t, activity)
	assert.Equal(t, TierTransfers, activity.Tier)
}

func TestTieredResolverFallsBackToHistory(t *testing.T) {
	// Signatures exist but none of the details carry balance movements.
	rpc := &fakeRPC{
		sigs: map[string][]solana.SignatureInfo{
			acctA: {{Signature: "sig1"}},
		},
		details: map[string]*solana.TransactionDetail{
			"sig1": {Signature: "sig1", Success: true},
		},
	}
	pool := &fakePool{client: rpc}
	resolver := NewTieredResolver(NewTokenTransferSource(pool, nil), NewHistorySource(pool, nil), nil)

	activity := resolver.Resolve(context.Background(), acctA)

	require.NotNil(t, activity)
	assert.Equal(t, TierHistory, activity.Tier)
	assert.Len(t, activity.Signatures, 1)
}

func TestTieredResolverNeverNil(t *testing.T) {
	pool := &fakePool{connErr: errors.New("all endpoints down")}
	resolver := NewTieredResolver(NewTokenTransferSource(pool, nil), NewHistorySource(pool, nil), nil)

	activity := resolver.Resolve(context.Background(), acctA)

	require.NotNil(t, activity, "dual-tier failure still yields an activity")
	assert.Equal(t, TierEmpty, activity.Tier)
	assert.Equal(t, acctA, activity.Address)
	assert.Empty(t, activity.Transfers)
	assert.Empty(t, activity.Signatures)
}
