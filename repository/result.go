// Package repository implements fetch-then-cache synchronization per entity
// family. Every read tries the remote API first and writes the response
// through the local cache before returning; when the remote is unreachable or
// errors, the read transparently falls back to whatever the cache holds. The
// Result type keeps that distinction visible to callers.
package repository

// Freshness tags how a Result's data was obtained.
type Freshness uint8

const (
	// FreshData came from the remote API and has been written through the cache.
	FreshData Freshness = iota
	// StaleData came from the local cache after a remote failure.
	StaleData
	// NoData means both the remote call and the cache fallback produced nothing.
	NoData
)

func (f Freshness) String() string {
	switch f {
	case FreshData:
		return "fresh"
	case StaleData:
		return "stale"
	default:
		return "failed"
	}
}

// Result is the outcome of one repository read. Exactly one of the three
// shapes holds: fresh data with no error, stale data alongside the remote
// error that forced the fallback, or no data with the error.
type Result[T any] struct {
	Data      T
	Freshness Freshness

	// Err is the remote failure behind a stale or failed result; nil when fresh.
	Err error
}

// Fresh wraps data fetched from the remote API.
func Fresh[T any](data T) Result[T] {
	return Result[T]{Data: data, Freshness: FreshData}
}

// Stale wraps cached data served because the remote call failed with err.
func Stale[T any](data T, err error) Result[T] {
	return Result[T]{Data: data, Freshness: StaleData, Err: err}
}

// Failed wraps a read that produced no data at all.
func Failed[T any](err error) Result[T] {
	return Result[T]{Freshness: NoData, Err: err}
}

// Ok reports whether the result carries usable data, fresh or stale.
func (r Result[T]) Ok() bool {
	return r.Freshness != NoData
}
