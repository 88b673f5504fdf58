package shared

import "fmt"

// LotCacheKey builds redis keys for cached FIFO lot listings.
func LotCacheKey(skuID, locationID int64) string {
	return fmt.Sprintf("ledger:lots:%d:%d", skuID, locationID)
}
