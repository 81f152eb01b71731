package storage

import (
	"fmt"
	"sort"
	"strings"

	"publishScope/internal/model"
)

const (
	PublishesTable = "publishes"
	TransfersTable = "publisher_transfers"
)

// Type families used when comparing an existing table to the expected layout.
const (
	FamilyText      = "text"
	FamilyInteger   = "integer"
	FamilyTimestamp = "timestamp"
	FamilyNumeric   = "numeric"
)

// Column is an expected column and its type family.
type Column struct {
	Name   string
	Family string
}

// PublishesColumns lists the publishes table in insert order.
var PublishesColumns = []Column{
	{"message", FamilyText},
	{"asset_id", FamilyText},
	{"block_number", FamilyInteger},
	{"time_asset_created", FamilyTimestamp},
	{"time_of_transaction", FamilyTimestamp},
	{"trac_price", FamilyNumeric},
	{"epochs_number", FamilyInteger},
	{"epoch_length_days", FamilyNumeric},
	{"publisher_address", FamilyText},
	{"sent_address", FamilyText},
	{"transaction_hash", FamilyText},
	{"block_hash", FamilyText},
}

// TransfersColumns lists the publisher_transfers table in insert order.
var TransfersColumns = []Column{
	{"hash", FamilyText},
	{"create_at", FamilyTimestamp},
	{"value", FamilyNumeric},
	{"symbol", FamilyText},
	{"pubber", FamilyText},
}

// TypeFamily maps a database data_type to a coarse family.
func TypeFamily(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	switch {
	case strings.Contains(t, "char"), strings.Contains(t, "text"), t == "string":
		return FamilyText
	case strings.Contains(t, "timestamp"):
		return FamilyTimestamp
	case strings.Contains(t, "int"):
		return FamilyInteger
	case strings.HasPrefix(t, "numeric"), strings.HasPrefix(t, "decimal"),
		strings.Contains(t, "double"), t == "real", strings.HasPrefix(t, "float"):
		return FamilyNumeric
	default:
		return t
	}
}

// CheckColumns compares actual column types (name -> data_type) with the
// expected layout. An empty actual map means the table does not exist yet.
func CheckColumns(table string, expected []Column, actual map[string]string) error {
	if len(actual) == 0 {
		return nil
	}

	var problems []string
	for _, col := range expected {
		dataType, ok := actual[col.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing column %s", col.Name))
			continue
		}
		if got := TypeFamily(dataType); got != col.Family {
			problems = append(problems, fmt.Sprintf("column %s is %s, want %s", col.Name, dataType, col.Family))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: table %s: %s", model.ErrSchemaConflict, table, strings.Join(problems, "; "))
}

// ColumnNames returns the column names joined for an INSERT statement.
func ColumnNames(cols []Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}
