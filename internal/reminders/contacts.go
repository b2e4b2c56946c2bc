package reminders

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vendai/vendai-jobs/internal/records"
)

// UserLookup loads a user document by id.
type UserLookup func(ctx context.Context, id string) (records.User, bool, error)

// ContactCache memoises retailer contact lookups for one run. Concurrent
// lookups of the same retailer share a single store read.
type ContactCache struct {
	lookup  UserLookup
	mu      sync.RWMutex
	entries map[string]Contact
	group   singleflight.Group
}

// NewContactCache builds an empty cache.
func NewContactCache(lookup UserLookup) *ContactCache {
	return &ContactCache{lookup: lookup, entries: map[string]Contact{}}
}

// Get resolves the contact of retailerID, falling back to fallbackUserID
// when the retailer has no user record.
func (c *ContactCache) Get(ctx context.Context, retailerID, fallbackUserID string) (Contact, error) {
	key := retailerID
	if key == "" {
		key = fallbackUserID
	}
	if key == "" {
		return Contact{}, nil
	}
	c.mu.RLock()
	contact, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return contact, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		contact, err := c.resolve(ctx, retailerID, fallbackUserID)
		if err != nil {
			return Contact{}, err
		}
		c.mu.Lock()
		c.entries[key] = contact
		c.mu.Unlock()
		return contact, nil
	})
	if err != nil {
		return Contact{}, err
	}
	return v.(Contact), nil
}

func (c *ContactCache) resolve(ctx context.Context, retailerID, fallbackUserID string) (Contact, error) {
	var (
		user  records.User
		found bool
		err   error
	)
	if retailerID != "" {
		if user, found, err = c.lookup(ctx, retailerID); err != nil {
			return Contact{}, err
		}
	}
	if !found && fallbackUserID != "" && fallbackUserID != retailerID {
		if user, found, err = c.lookup(ctx, fallbackUserID); err != nil {
			return Contact{}, err
		}
	}
	if !found {
		return Contact{}, nil
	}
	return Contact{Name: user.ContactName(), Email: user.ContactEmail(), Phone: user.ContactPhoneNumber()}, nil
}
