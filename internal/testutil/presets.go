package testutil

// WithChainTestData adds a transaction chain with a fork and a gap.
//
// Structure (seed names):
//
//	root ── a ──┬── b1
//	            └── b2        (fork: two successors of a)
//	orphan → missing          (gap: missing was never stored)
//
// b2 is the newest transaction; b1, b2 and orphan are tips.
func (b *Builder) WithChainTestData(registerID string) *Builder {
	return b.
		WithTx(registerID, "root", At(0), Sender("alice")).
		WithTx(registerID, "a", At(1), Prev("root"), Sender("alice"), Recipients("bob")).
		WithTx(registerID, "b1", At(2), Prev("a"), Sender("bob"), Recipients("carol")).
		WithTx(registerID, "b2", At(4), Prev("a"), Sender("bob"), Recipients("dave")).
		WithTx(registerID, "orphan", At(3), Prev("missing"), Sender("erin"))
}

// WithWalletTestData adds five transactions touching wallet "W", one of which
// has W as both sender and recipient.
func (b *Builder) WithWalletTestData(registerID string) *Builder {
	return b.
		WithTx(registerID, "w1", At(1), Sender("W"), Recipients("X")).
		WithTx(registerID, "w2", At(2), Sender("X"), Recipients("W")).
		WithTx(registerID, "w3", At(3), Sender("W"), Recipients("W")).
		WithTx(registerID, "w4", At(4), Sender("Y"), Recipients("Z", "W")).
		WithTx(registerID, "w5", At(5), Sender("W")).
		WithTx(registerID, "other", At(6), Sender("Y"), Recipients("Z"))
}
