// Package fetch resolves live availability for watchlist entries in parallel.
//
// A fixed pool of workers consumes the entries in list order. Each item
// request is retried on any non-success status or transport error with capped
// exponential backoff. The first item that still fails aborts the whole
// fetch: dispatch stops, in-flight requests are cancelled and no partial
// result is returned.
//
// Example usage:
//
//	cfg := fetch.DefaultConfig()
//	cfg.Workers = 5
//	f := fetch.New(catalogClient, cfg)
//	items, err := f.FetchAll(ctx, sess, listItems)
//
// On success the items are sorted by signature, ties broken by id, so the
// result does not depend on the worker count.
package fetch
