package tasks

// Topic names double as durable queue names, so renaming one strands
// in-flight messages.
const (
	TopicCreateNotification       = "create_notification"
	TopicPushUnreadCount          = "push_unread_count"
	TopicGenerateAvatarThumbnails = "generate_avatar_thumbnails"
	TopicDeleteStoragePaths       = "delete_storage_paths"
	TopicSyncPresence             = "sync_presence_to_store"
	TopicReconcileCounters        = "reconcile_user_counters"
)

// CreateNotificationPayload asks the worker to persist one notification
// and push the recipient's unread count.
type CreateNotificationPayload struct {
	RecipientID int64  `json:"recipient_id"`
	ActorID     int64  `json:"actor_id"`
	Kind        string `json:"kind"`
	RelatedType string `json:"related_type"`
	RelatedID   int64  `json:"related_id"`
	Message     string `json:"message"`
}

// PushUnreadCountPayload asks the worker to recompute the recipient's
// unread count and push it over any open sockets. UpdateList tells the
// client whether its notification list is stale.
type PushUnreadCountPayload struct {
	UserID     int64 `json:"user_id"`
	UpdateList bool  `json:"update_list"`
}

// GenerateAvatarThumbnailsPayload carries the freshly stored original
// plus the paths of the avatar it replaced. The superseded paths are
// deleted only after the new thumbnails exist.
type GenerateAvatarThumbnailsPayload struct {
	UserID          int64    `json:"user_id"`
	SourcePath      string   `json:"source_path"`
	SupersededPaths []string `json:"superseded_paths,omitempty"`
}

// DeleteStoragePathsPayload lists files to remove from the blob store.
// With no explicit paths the handler falls back to sweeping the user's
// avatar prefix, keeping only files the live row still references.
type DeleteStoragePathsPayload struct {
	UserID int64    `json:"user_id"`
	Paths  []string `json:"paths,omitempty"`
}

// SyncPresencePayload is empty; the handler reads the presence store
// directly.
type SyncPresencePayload struct{}

// ReconcileCountersPayload is empty; the handler recomputes every
// user's counters from the source tables.
type ReconcileCountersPayload struct{}
