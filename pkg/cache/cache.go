// Package cache abstracts the content-cache invalidation provider. Purges
// are best effort: callers log failures and move on.
package cache

import "context"

// Provider invalidates cached content for an account reference.
type Provider interface {
	PurgeContentByKey(ctx context.Context, key string) error
}

// NoopProvider is used when no cache backend is configured.
type NoopProvider struct{}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

func (p *NoopProvider) PurgeContentByKey(ctx context.Context, key string) error {
	return nil
}
