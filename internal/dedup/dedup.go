package dedup

import (
	"github.com/scoutlabs/cryptoscout/internal/identity"
	"github.com/scoutlabs/cryptoscout/internal/models"
)

// Checker is the membership view of the history store.
type Checker interface {
	IsKnown(id string) bool
}

// Partition splits a batch into items not yet analyzed and a count of
// duplicates. Order among fresh items is preserved. An item repeated within
// the same batch counts as a duplicate from its second occurrence, even when
// the store has never seen it.
func Partition(items []models.NewsItem, known Checker) ([]models.NewsItem, int) {
	var fresh []models.NewsItem
	duplicates := 0
	inBatch := make(map[string]struct{}, len(items))

	for _, item := range items {
		id := identity.Compute(item.Title, item.Link)
		if _, seen := inBatch[id]; seen || known.IsKnown(id) {
			duplicates++
			continue
		}
		inBatch[id] = struct{}{}
		fresh = append(fresh, item)
	}

	return fresh, duplicates
}
