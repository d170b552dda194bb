package dealcloud

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// queryCache memoizes read queries for the lifetime of one sync run. Keys are
// normalized query signatures; empty results are cached too, so repeated
// misses within a run are not re-queried. The run controller clears it at the
// start of every run.
type queryCache struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

func newQueryCache() *queryCache {
	return &queryCache{entries: make(map[string]interface{})}
}

func (c *queryCache) get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.entries[key]
	return val, ok
}

func (c *queryCache) set(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = val
}

func (c *queryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]interface{})
}

func (c *queryCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func contactsCacheKey(emails []string) string {
	normalized := make([]string, len(emails))
	for i, e := range emails {
		normalized[i] = strings.ToLower(e)
	}
	sort.Strings(normalized)
	return "contacts:" + strings.Join(normalized, ",")
}

func dealsByNameCacheKey(name string) string {
	return "deals_name:" + strings.ToLower(name)
}

func dealsByCompanyCacheKey(companyID int) string {
	return fmt.Sprintf("deals_company:%d", companyID)
}

func interactionCacheKey(subject string) string {
	return "interaction:" + subject
}
