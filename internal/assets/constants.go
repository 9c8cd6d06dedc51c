package assets

import "time"

const (
	defaultUploadConcurrency = 3
	codeAllocationAttempts   = 3
	rollbackTimeout          = 30 * time.Second

	defaultListLimit = 50
	maxListLimit     = 200

	wakeReasonUpload     = "asset_upload"
	wakeReasonRegenerate = "bulk_regenerate"
	wakeScopeBatch       = "batch"

	codeInternalServerError = "INTERNAL_SERVER_ERROR"

	errUploadSlotFmt = "upload %s: %w"
)

const (
	msgTitleRequired       = "title is required"
	msgCategoryRequired    = "category is required"
	msgUnknownSlotFmt      = "unknown upload field %q"
	msgUploadFailed        = "upload failed; changes were rolled back"
	msgInvalidStatus       = "status must be draft or published"
	msgNotPublishable      = "thumbnail and document must both be uploaded before publishing"
	msgStorageDeleteFailed = "failed to delete stored object"
	msgIDsRequired         = "ids cannot be empty"
	msgNoSource            = "no source uploaded"
	msgAlreadyPending      = "a pending job already exists"
	msgInternalFailure     = "internal error"
	msgEnqueueFailed       = "upload saved, but processing could not be queued; regenerate to retry"
)
