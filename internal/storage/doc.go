// Package storage provides the local key-value storage interface and
// in-memory implementation. Each node holds the keys for which it is a
// replica; CREATE fails on an existing key and READ, UPDATE and DELETE fail
// on an absent one.
package storage
