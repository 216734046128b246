package graph

import "strings"

// defaultDeniedAddresses are infrastructure accounts that participate in
// nearly every transaction and would turn any traversal into a hairball.
var defaultDeniedAddresses = []string{
	"11111111111111111111111111111111",             // system program
	"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",  // SPL token program
	"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL", // associated token account program
	"ComputeBudget111111111111111111111111111111",
	"SysvarRent111111111111111111111111111111111",
	"SysvarC1ock11111111111111111111111111111111",
}

// defaultProgramFragments match well-known program address prefixes.
// Solana programs use vanity ids, so a substring check on the address is
// enough to recognize the family.
var defaultProgramFragments = []string{
	"Tokenkeg",
	"ATokenGPv",
	"Sysvar",
	"Vote111",
	"ComputeBudget111",
	"Stake111",
	"Config111",
	"Memo",
	"BPFLoader",
	"675kPX9",  // raydium AMM v4
	"whirLbMi", // orca whirlpools
	"JUP",      // jupiter aggregator
	"srmqPvy",  // serum DEX
}

// ExclusionFilter decides which accounts are kept out of the graph:
// a static address deny-list plus program-id fragment matching.
type ExclusionFilter struct {
	denied    map[string]struct{}
	fragments []string
}

// NewExclusionFilter builds a filter from the defaults plus any extra
// denied addresses.
func NewExclusionFilter(extra ...string) *ExclusionFilter {
	denied := make(map[string]struct{}, len(defaultDeniedAddresses)+len(extra))
	for _, a := range defaultDeniedAddresses {
		denied[a] = struct{}{}
	}
	for _, a := range extra {
		denied[a] = struct{}{}
	}
	return &ExclusionFilter{
		denied:    denied,
		fragments: defaultProgramFragments,
	}
}

// Excluded reports whether the address must not appear in the graph.
func (f *ExclusionFilter) Excluded(address string) bool {
	if _, ok := f.denied[address]; ok {
		return true
	}
	for _, frag := range f.fragments {
		if strings.Contains(address, frag) {
			return true
		}
	}
	return false
}

// Keep filters a participant list down to includable addresses,
// preserving order.
func (f *ExclusionFilter) Keep(addresses []string) []string {
	out := addresses[:0:0]
	for _, a := range addresses {
		if !f.Excluded(a) {
			out = append(out, a)
		}
	}
	return out
}
