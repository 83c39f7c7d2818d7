package domain

import (
	"errors"
	"fmt"
	"time"
)

// System avatar images live outside the per-user prefix and are never
// deleted by cleanup or reconciliation.
const (
	DefaultAvatarPath           = "avatars/default_avatar.jpg"
	DefaultAvatarSmallSize1Path = "avatars/default_avatar_small_size1.jpg"
	DefaultAvatarSmallSize2Path = "avatars/default_avatar_small_size2.jpg"
	DefaultAvatarSmallSize3Path = "avatars/default_avatar_small_size3.jpg"
)

// AvatarSmallSizes maps thumbnail slot to its square bounding box in pixels.
var AvatarSmallSizes = map[int]int{
	1: 100,
	2: 170,
	3: 800,
}

// User carries the profile row plus the cached activity counters
// (posts_count, comments_count, reputation). The counters are derived
// aggregates: incremented best-effort on writes and recomputed from the
// authoritative tables by counter reconciliation.
type User struct {
	ID       int64  `json:"id" gorm:"primaryKey"`
	Username string `json:"username" gorm:"type:text;not null;uniqueIndex"`

	Avatar           string `json:"avatar" gorm:"type:text;not null;default:''"`
	AvatarSmallSize1 string `json:"avatar_small_size1" gorm:"type:text;not null;default:''"`
	AvatarSmallSize2 string `json:"avatar_small_size2" gorm:"type:text;not null;default:''"`
	AvatarSmallSize3 string `json:"avatar_small_size3" gorm:"type:text;not null;default:''"`

	Reputation    int `json:"reputation" gorm:"not null;default:0;index:idx_users_reputation,sort:desc"`
	PostsCount    int `json:"posts_count" gorm:"not null;default:0"`
	CommentsCount int `json:"comments_count" gorm:"not null;default:0"`

	LastSeen  *time.Time `json:"last_seen,omitempty" gorm:"index"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

var defaultAvatarPaths = map[string]struct{}{
	DefaultAvatarPath:           {},
	DefaultAvatarSmallSize1Path: {},
	DefaultAvatarSmallSize2Path: {},
	DefaultAvatarSmallSize3Path: {},
}

// AvatarPrefix is the storage directory holding every avatar file the
// user ever uploaded.
func AvatarPrefix(userID int64) string {
	return fmt.Sprintf("avatars/%d/", userID)
}

// IsDefaultAvatarPath reports whether p names one of the system images.
func IsDefaultAvatarPath(p string) bool {
	_, ok := defaultAvatarPaths[p]
	return ok
}

// Thumbnails returns the thumbnail paths by slot order.
func (u *User) Thumbnails() [3]string {
	return [3]string{u.AvatarSmallSize1, u.AvatarSmallSize2, u.AvatarSmallSize3}
}

// OwnedAvatarPaths returns every storage path of this user's current avatar
// generation, excluding system defaults and empty slots.
func (u *User) OwnedAvatarPaths() []string {
	paths := make([]string, 0, 4)
	for _, p := range []string{u.Avatar, u.AvatarSmallSize1, u.AvatarSmallSize2, u.AvatarSmallSize3} {
		if p == "" || IsDefaultAvatarPath(p) {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

// HasCustomAvatar reports whether the user replaced the system image.
func (u *User) HasCustomAvatar() bool {
	return u.Avatar != "" && !IsDefaultAvatarPath(u.Avatar)
}

// CounterSnapshot is the cached aggregate stored on the user row.
type CounterSnapshot struct {
	UserID        int64
	PostsCount    int
	CommentsCount int
	Reputation    int
}

// Counter columns updatable through the clamp-add fast path.
const (
	CounterPosts      = "posts_count"
	CounterComments   = "comments_count"
	CounterReputation = "reputation"
)

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidCounter = errors.New("invalid_counter_field")
)
