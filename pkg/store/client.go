package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis persistence for workspaces, checklists
// and modification requests, plus the fulfillment event channel.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new store client for the specified instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the namespace this client writes to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// RedisClient exposes the underlying connection for callers that need raw access.
func (c *Client) RedisClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SaveChecklist writes the full checklist hash, replacing any previous version.
func (c *Client) SaveChecklist(ctx context.Context, cl *fulfillment.Checklist) error {
	if err := cl.Validate(); err != nil {
		return fmt.Errorf("invalid checklist: %w", err)
	}

	hash, err := ChecklistToHash(cl)
	if err != nil {
		return fmt.Errorf("failed to serialize checklist: %w", err)
	}

	key := ChecklistKey(c.instanceName, cl.ID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return fmt.Errorf("failed to write checklist to Redis: %w", err)
	}
	return nil
}

// GetChecklist retrieves a checklist by ID.
// Returns (nil, redis.Nil) if the checklist doesn't exist.
func (c *Client) GetChecklist(ctx context.Context, checklistID string) (*fulfillment.Checklist, error) {
	hashData, err := c.rdb.HGetAll(ctx, ChecklistKey(c.instanceName, checklistID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	cl, err := HashToChecklist(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize checklist: %w", err)
	}
	return cl, nil
}

// DeleteChecklist removes a checklist. Deleting a missing checklist is not an error.
func (c *Client) DeleteChecklist(ctx context.Context, checklistID string) error {
	if err := c.rdb.Del(ctx, ChecklistKey(c.instanceName, checklistID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checklist: %w", err)
	}
	return nil
}

// ListChecklists loads every checklist of this instance, oldest first.
func (c *Client) ListChecklists(ctx context.Context) ([]*fulfillment.Checklist, error) {
	ids, err := c.scanIDs(ctx, "checklist", "")
	if err != nil {
		return nil, err
	}

	out := make([]*fulfillment.Checklist, 0, len(ids))
	for _, id := range ids {
		cl, err := c.GetChecklist(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue // deleted between SCAN and HGETALL
			}
			return nil, fmt.Errorf("checklist %s: %w", id, err)
		}
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs < out[j].CreatedAtMs })
	return out, nil
}

// ScanChecklistIDs returns the ids of all checklists whose id starts with prefix.
func (c *Client) ScanChecklistIDs(ctx context.Context, prefix string) ([]string, error) {
	return c.scanIDs(ctx, "checklist", prefix)
}

// SaveWorkspace writes the full workspace hash.
func (c *Client) SaveWorkspace(ctx context.Context, w *fulfillment.Workspace) error {
	if w.ID == "" {
		return fmt.Errorf("invalid workspace: id cannot be empty")
	}
	if err := w.Step.Validate(); err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	hash, err := WorkspaceToHash(w)
	if err != nil {
		return fmt.Errorf("failed to serialize workspace: %w", err)
	}
	if err := c.rdb.HSet(ctx, WorkspaceKey(c.instanceName, w.ID), hash).Err(); err != nil {
		return fmt.Errorf("failed to write workspace to Redis: %w", err)
	}
	return nil
}

// GetWorkspace retrieves a workspace by ID.
// Returns (nil, redis.Nil) if the workspace doesn't exist.
func (c *Client) GetWorkspace(ctx context.Context, workspaceID string) (*fulfillment.Workspace, error) {
	hashData, err := c.rdb.HGetAll(ctx, WorkspaceKey(c.instanceName, workspaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	w, err := HashToWorkspace(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize workspace: %w", err)
	}
	return w, nil
}

// DeleteWorkspace removes a workspace hash.
func (c *Client) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if err := c.rdb.Del(ctx, WorkspaceKey(c.instanceName, workspaceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	return nil
}

// ListWorkspaces loads every workspace of this instance, oldest first.
func (c *Client) ListWorkspaces(ctx context.Context) ([]*fulfillment.Workspace, error) {
	ids, err := c.scanIDs(ctx, "workspace", "")
	if err != nil {
		return nil, err
	}

	out := make([]*fulfillment.Workspace, 0, len(ids))
	for _, id := range ids {
		w, err := c.GetWorkspace(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("workspace %s: %w", id, err)
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs < out[j].CreatedAtMs })
	return out, nil
}

// SaveModificationRequest writes the full request hash.
func (c *Client) SaveModificationRequest(ctx context.Context, r *fulfillment.ModificationRequest) error {
	if r.ID == "" || r.ChecklistID == "" {
		return fmt.Errorf("invalid modification request: id and checklist id are required")
	}

	hash, err := ModificationToHash(r)
	if err != nil {
		return fmt.Errorf("failed to serialize modification request: %w", err)
	}
	if err := c.rdb.HSet(ctx, ModificationKey(c.instanceName, r.ID), hash).Err(); err != nil {
		return fmt.Errorf("failed to write modification request to Redis: %w", err)
	}
	return nil
}

// GetModificationRequest retrieves a request by ID.
// Returns (nil, redis.Nil) if the request doesn't exist.
func (c *Client) GetModificationRequest(ctx context.Context, requestID string) (*fulfillment.ModificationRequest, error) {
	hashData, err := c.rdb.HGetAll(ctx, ModificationKey(c.instanceName, requestID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read modification request from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	r, err := HashToModification(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize modification request: %w", err)
	}
	return r, nil
}

// ListModificationRequests loads every request of this instance, oldest first.
func (c *Client) ListModificationRequests(ctx context.Context) ([]*fulfillment.ModificationRequest, error) {
	ids, err := c.scanIDs(ctx, "modification", "")
	if err != nil {
		return nil, err
	}

	out := make([]*fulfillment.ModificationRequest, 0, len(ids))
	for _, id := range ids {
		r, err := c.GetModificationRequest(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("modification request %s: %w", id, err)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs < out[j].CreatedAtMs })
	return out, nil
}

// Publish sends an event on tally:{instance}:events.
// Delivery is at-most-once; subscribers that are not connected miss the event.
func (c *Client) Publish(ctx context.Context, ev fulfillment.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := c.rdb.Publish(ctx, EventsChannel(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// scanIDs iterates entity keys with SCAN (never KEYS) and returns the ids that
// start with idPrefix, sorted lexically.
func (c *Client) scanIDs(ctx context.Context, entity, idPrefix string) ([]string, error) {
	prefix := keyPrefix(c.instanceName, entity)
	iter := c.rdb.Scan(ctx, 0, prefix+idPrefix+"*", 0).Iterator()

	var ids []string
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), prefix)
		if strings.Contains(id, ":") {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s keys: %w", entity, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Subscription represents an active Pub/Sub subscription to fulfillment events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *fulfillment.Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *fulfillment.Event {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors (malformed payloads).
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvents subscribes to fulfillment events for this instance.
// Events are delivered on a buffered channel (size 64); if the subscriber is too
// slow Redis may drop messages.
func (c *Client) SubscribeEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, EventsChannel(c.instanceName))

	// Wait for the subscription confirmation so events published right after
	// SubscribeEvents returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}

	eventsChan := make(chan *fulfillment.Event, 64)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev fulfillment.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
