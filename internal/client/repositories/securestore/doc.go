// Package securestore is the encrypted key/value repository backing the
// client's credential store.
//
// Values are sealed with AES-256-GCM (see cryptox) before they reach SQLite,
// and the entry key is bound to the ciphertext as additional data, so a row
// copied under another key fails to open. Multi-key writes go through Update,
// which runs in a single SQLite transaction: readers never observe half of a
// combined write, even across a crash.
//
// The schema is managed by goose migrations embedded in the migrations
// package; OpenDB applies them.
package securestore
