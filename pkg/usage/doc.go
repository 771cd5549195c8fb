// Package usage defines the usage record model shared by every tokenmeter
// component: the record itself, its storage keys, the store interfaces, and
// the error types returned by storage and export backends.
//
// # Usage Records
//
// One Record is created per model invocation. Records are immutable once
// built: total tokens are derived from input and output tokens, and the
// estimated cost is derived from the pricing table at creation time.
//
// # Storage Keys
//
// Every backend addresses a record by the same composite key:
//
//	date_partition  = YYYY-MM-DD of the record timestamp (UTC)
//	timestamp_agent = HH:MM:SS.mmm#<agent_id>
//
// Writes are spread across daily partitions while records within a day stay
// time ordered. Re-writing a record with the same key overwrites it.
//
// Every stored item also carries an absolute expiry (epoch seconds) equal to
// the write time plus the configured retention.
package usage
