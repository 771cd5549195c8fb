// Package store provides durable, TTL-bounded storage backends for usage
// records.
//
// Every backend implements usage.Store with the same key contract: a date
// partition (YYYY-MM-DD of the record timestamp) and a time sort key
// (HH:MM:SS.mmm#agentId). Put is idempotent on that pair. Every item carries
// an expires_at value of write time plus the retention window; backends with
// a native reaper (DynamoDB TTL, Redis EXPIREAT) enforce it themselves, and
// PurgeExpired is the manual fallback.
//
// # Backends
//
//   - DynamoStore: Amazon DynamoDB with agent and incident secondary indexes.
//   - SQLiteStore: a local database through database/sql, using either the
//     pure Go "sqlite" driver or the cgo "sqlite3" driver.
//   - RedisStore: one JSON value per record plus sorted-set indexes.
//   - MemoryStore: maps, for tests and dry runs.
//
// All queries return records most recent first.
package store
