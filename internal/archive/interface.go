package archive

import "context"

// RawArchive stores raw adapter payloads so a scrape batch can be replayed
// through the normalizer after an alias-table or parser fix. Archiving is
// best-effort: failures are logged by callers and never fail a run.
type RawArchive interface {
	// Store persists one raw payload batch under the given key.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - key: object key, e.g. "2026/08/28/ebay/item-id.json.gz".
	//   - payload: serialized raw listing batch.
	// Returns:
	//   - error: non-nil if the write fails.
	Store(ctx context.Context, key string, payload []byte) error

	// Fetch retrieves a previously archived payload batch.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - key: object key.
	// Returns:
	//   - []byte: decompressed payload.
	//   - error: non-nil if the read fails.
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Noop is the archive used when archiving is disabled.
type Noop struct{}

// Store discards the payload.
func (Noop) Store(ctx context.Context, key string, payload []byte) error { return nil }

// Fetch always reports missing data.
func (Noop) Fetch(ctx context.Context, key string) ([]byte, error) { return nil, ErrNotArchived }
