package asset

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPendingUpload Status = "pending_upload"
	StatusDraft         Status = "draft"
	StatusPublished     Status = "published"
)

// Storage pointer sentinels. A pointer holding one of these was reserved but
// never written, which is distinct from nil (never requested).
const (
	SentinelDraft   = "draft"
	SentinelPending = "pending"
)

type Bucket string

const (
	BucketPublic  Bucket = "public"
	BucketPrivate Bucket = "private"
)

func (b Bucket) Valid() bool {
	return b == BucketPublic || b == BucketPrivate
}

type Asset struct {
	ID            uuid.UUID
	Code          string
	Slug          string
	Title         string
	Description   string
	Category      string
	Skill         string
	Tags          []string
	ThumbnailKey  *string
	DocumentKey   *string
	PreviewKey    *string
	SourceKey     *string
	Status        Status
	DownloadCount int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CreateAssetInput struct {
	Code         string
	Slug         string
	Title        string
	Description  string
	Category     string
	Skill        string
	Tags         []string
	ThumbnailKey *string
	DocumentKey  *string
	Status       Status
}

// UpdateAssetInput holds only the fields to change; nil means untouched.
type UpdateAssetInput struct {
	Title        *string
	Description  *string
	Category     *string
	Skill        *string
	Tags         []string
	Slug         *string
	ThumbnailKey *string
	DocumentKey  *string
	PreviewKey   *string
	SourceKey    *string
	Status       *Status
}

func (in UpdateAssetInput) IsEmpty() bool {
	return in.Title == nil && in.Description == nil && in.Category == nil && in.Skill == nil &&
		in.Tags == nil && in.Slug == nil && in.ThumbnailKey == nil && in.DocumentKey == nil &&
		in.PreviewKey == nil && in.SourceKey == nil && in.Status == nil
}

type ListAssetsFilter struct {
	Status *Status
	Limit  int
	Offset int
}

func IsSentinel(key string) bool {
	return key == SentinelDraft || key == SentinelPending
}

// IsWritten reports whether the pointer references a real stored object.
func IsWritten(ptr *string) bool {
	return ptr != nil && *ptr != "" && !IsSentinel(*ptr)
}

// StoredObject is one written storage pointer together with its bucket.
type StoredObject struct {
	Bucket Bucket
	Key    string
}

// WrittenObjects lists every pointer that refers to a real object.
func (a *Asset) WrittenObjects() []StoredObject {
	candidates := []struct {
		bucket Bucket
		ptr    *string
	}{
		{BucketPublic, a.ThumbnailKey},
		{BucketPrivate, a.DocumentKey},
		{BucketPublic, a.PreviewKey},
		{BucketPrivate, a.SourceKey},
	}

	var objects []StoredObject
	for _, c := range candidates {
		if IsWritten(c.ptr) {
			objects = append(objects, StoredObject{Bucket: c.bucket, Key: *c.ptr})
		}
	}
	return objects
}

// PublishReady enforces that thumbnail and document are both written or
// both absent before an asset leaves pending_upload for public listing.
func (a *Asset) PublishReady() bool {
	if a.ThumbnailKey == nil && a.DocumentKey == nil {
		return true
	}
	return IsWritten(a.ThumbnailKey) && IsWritten(a.DocumentKey)
}
