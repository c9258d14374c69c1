package storage

import (
	"fmt"
	"regexp"
)

// DefaultAuditTable is used when no table name is configured
const DefaultAuditTable = "audit_records"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS "%[1]s" (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id TEXT UNIQUE NOT NULL,
    email TEXT NOT NULL,
    status TEXT NOT NULL,
    recorded_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS "idx_%[1]s_recorded_at" ON "%[1]s"(recorded_at DESC);
CREATE INDEX IF NOT EXISTS "idx_%[1]s_email" ON "%[1]s"(email);
`

// auditSchema renders the schema for table, which must already be validated
func auditSchema(table string) string {
	return fmt.Sprintf(schemaTemplate, table)
}

func validateTableName(table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("invalid audit table name %q", table)
	}
	return nil
}
