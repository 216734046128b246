package solana

import "context"

// LogEvent is one logsNotification scoped to a watched account.
type LogEvent struct {
	// Signature of the transaction that mentioned the account.
	Signature string
	// Failed reports whether the transaction errored on chain.
	Failed bool
	// Logs are the raw program log lines.
	Logs []string
}

// LogSubscriber provides live log subscriptions for accounts.
type LogSubscriber interface {
	// SubscribeAccountLogs streams log events for transactions mentioning
	// the address. The channel closes when the client shuts down.
	SubscribeAccountLogs(ctx context.Context, address string) (<-chan LogEvent, error)

	// Close terminates the connection and all subscriptions.
	Close() error
}
