// Package store persists Tally workspaces, checklists and modification requests
// in Redis and carries the fulfillment event channel.
//
// # Layout
//
// Every entity is one Redis hash. Scalar fields map to hash fields; item lists,
// notification feeds and snapshots are JSON-encoded into a single field.
// Weights and quality scores keep their exact decimal string form.
//
// # Multi-Instance Support
//
// All keys and channels are namespaced by instance name so several Tally
// deployments can share one Redis server:
//
//	tally:{instance}:checklist:{id}
//	tally:{instance}:workspace:{id}
//	tally:{instance}:modification:{id}
//	tally:{instance}:events
//
// # Usage Example
//
//	client, err := store.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	cl, err := client.GetChecklist(ctx, "3f2a...")
//	if store.IsNotFound(err) {
//		// no such checklist
//	}
//
// Lookups of missing entities return redis.Nil; use IsNotFound to test for it.
package store
