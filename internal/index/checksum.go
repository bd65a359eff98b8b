package index

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/store"
)

// Checksum returns the 64-bit xxHash of text as 16 lowercase hex characters.
func Checksum(text string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(text))
}

// NeedsReindex reports whether item must be embedded again given its
// stored record. existing is nil when the item has never been indexed.
func NeedsReindex(item content.Item, existing *store.Record, force bool) bool {
	if force || existing == nil {
		return true
	}
	return existing.Checksum != Checksum(item.Text)
}
