package eventmap

import (
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-core"
)

const (
	// MetadataKeyTenant stores the tenant the event occurred under.
	MetadataKeyTenant = "tenant_id"
	// MetadataKeyReason stores the event reason (failure cause, policy name).
	MetadataKeyReason = "reason"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "session"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic event shape for downstream systems
// (audit logs, activity feeds, SIEM pipelines).
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(auth.Event) string
}

// Normalize converts an auth.Event into a generic normalized shape.
func Normalize(event auth.Event, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(options.actorFallback),
	)

	objectID := resolveObjectID(event, options.objectIDResolver)
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.Type),
		ObjectType: strings.TrimSpace(options.objectType),
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from the event.
func WithObjectIDResolver(resolver func(auth.Event) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the final actor-id fallback when the user id is empty.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event auth.Event, resolver func(auth.Event) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	if id := strings.TrimSpace(event.SessionID); id != "" {
		return id
	}
	return strings.TrimSpace(event.UserID)
}

func normalizeMetadata(event auth.Event) map[string]any {
	metadata := cloneMap(event.Metadata)

	if tenant := strings.TrimSpace(event.TenantID); tenant != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyTenant]; !exists {
			metadata[MetadataKeyTenant] = tenant
		}
	}

	if event.Reason != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyReason] = event.Reason
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
