package solana

// SignatureInfo is one entry from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{} // non-nil when the transaction failed on chain
}

// Succeeded reports whether the transaction confirmed without error.
func (s SignatureInfo) Succeeded() bool {
	return s.Err == nil
}

// SignaturesOpts defines optional pagination parameters for
// getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}
