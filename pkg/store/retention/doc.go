// Package retention runs the manual purge of expired usage records.
//
// Backends with a native reaper (DynamoDB TTL, Redis EXPIREAT) delete
// expired records on their own; the purge here is the fallback for backends
// that have none, such as SQLite, and for forcing a cleanup on demand.
//
// # Usage
//
//	purger := retention.NewPurger(store)
//	result, err := purger.Purge(ctx)
//
//	scheduler := retention.NewScheduler(purger, "0 3 * * *")
//	if err := scheduler.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer scheduler.Stop()
package retention
