package gateway

import (
	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/model"
)

// addCardSnapshot records the card attributes a provider reported. Empty
// values are skipped, and a snapshot that fails the stored-record check is
// dropped whole.
func addCardSnapshot(md model.Metadata, brand, last4, expiry string) {
	fields := map[string]string{"brand": brand, "last4": last4, "expiry": expiry}
	record := make(map[string]any, len(fields))
	for k, v := range fields {
		if v != "" {
			record[k] = v
		}
	}
	if len(record) == 0 || security.ValidateStoredRecord(record) != nil {
		return
	}
	for k, v := range record {
		md[model.MetaCardPrefix+k] = v.(string)
	}
}
