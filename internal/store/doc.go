// Package store defines the catalog entities, the draft types the crawler
// hands to persistence, and the repository interfaces that storage backends
// implement. Implementations live in internal/storage; this package must not
// import database drivers or concrete clients.
package store
