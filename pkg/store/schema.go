package store

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so several
// Tally deployments can share one Redis server.
//
// Key pattern: tally:{instance_name}:{entity}:{id}
// Channel pattern: tally:{instance_name}:events

// ChecklistKey returns the Redis key for a checklist hash.
// Pattern: tally:{instance_name}:checklist:{checklist_id}
func ChecklistKey(instanceName, checklistID string) string {
	return fmt.Sprintf("tally:%s:checklist:%s", instanceName, checklistID)
}

// WorkspaceKey returns the Redis key for a workspace hash.
// Pattern: tally:{instance_name}:workspace:{workspace_id}
func WorkspaceKey(instanceName, workspaceID string) string {
	return fmt.Sprintf("tally:%s:workspace:%s", instanceName, workspaceID)
}

// ModificationKey returns the Redis key for a modification request hash.
// Pattern: tally:{instance_name}:modification:{request_id}
func ModificationKey(instanceName, requestID string) string {
	return fmt.Sprintf("tally:%s:modification:%s", instanceName, requestID)
}

// EventsChannel returns the Pub/Sub channel carrying fulfillment events.
// Pattern: tally:{instance_name}:events
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("tally:%s:events", instanceName)
}

// keyPrefix returns the common prefix of all keys of one entity kind.
func keyPrefix(instanceName, entity string) string {
	return fmt.Sprintf("tally:%s:%s:", instanceName, entity)
}
