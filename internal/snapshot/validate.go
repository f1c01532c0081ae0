package snapshot

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// requiredColumns must be present for a file to be read back as a snapshot.
var requiredColumns = []string{"row_number", "batch", "year_month", "recipient_number", "name_hash", "institution_code"}

// ValidateSchema checks that the Parquet schema carries the snapshot columns.
func ValidateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}

	var missing []string
	for _, col := range requiredColumns {
		if !columns[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("not a snapshot file, missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
