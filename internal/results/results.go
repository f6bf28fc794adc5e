// Package results keeps the most recent check outcome per domain.
package results

import (
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Entry is the last known outcome for a domain
type Entry struct {
	Domain         string    `json:"domain"`
	Succeeded      bool      `json:"succeeded"`
	Automated      bool      `json:"automatedCheck"`
	DaysRemaining  int       `json:"daysRemaining,omitempty"`
	ExpirationDate string    `json:"expirationDate,omitempty"`
	Issuer         string    `json:"issuer,omitempty"`
	Error          string    `json:"error,omitempty"`
	CheckedAt      time.Time `json:"checkedAt"`
}

// Store is a bounded, expiring map of domain to Entry
type Store struct {
	lru *expirable.LRU[string, Entry]
}

// New creates a store holding up to size domains for ttl
func New(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = 4096
	}
	return &Store{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

// Put records e, replacing any previous entry for the domain
func (s *Store) Put(e Entry) {
	s.lru.Add(e.Domain, e)
}

// Get returns the entry for domain
func (s *Store) Get(domain string) (Entry, bool) {
	return s.lru.Get(domain)
}

// Len returns the number of stored domains
func (s *Store) Len() int { return s.lru.Len() }

// Entries returns all live entries ordered by domain
func (s *Store) Entries() []Entry {
	out := s.lru.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// Snapshot implements metrics.Snapshotter
func (s *Store) Snapshot() interface{} {
	return s.Entries()
}
