package handler

import "time"

const (
	paramID     = "id"
	paramBucket = "bucket"

	queryLimit  = "limit"
	queryOffset = "offset"
	queryStatus = "status"

	headerFileName = "X-File-Name"

	jsonKeyError   = "error"
	jsonKeyMessage = "message"

	formAssetID        = "asset_id"
	formMetadata       = "metadata"
	formTitle          = "title"
	formDescription    = "description"
	formCategory       = "category"
	formSkill          = "skill"
	formTags           = "tags"
	formSkipProcessing = "skip_processing"

	defaultAdminSignTTL = time.Hour
	maxBulkIDs          = 500
)

const (
	msgContentTypeJSONRequired = "content type must be application/json"
	msgInvalidRequestBody      = "invalid request body"
	msgInvalidAssetID          = "invalid asset id"
	msgInvalidJobID            = "invalid job id"
	msgInvalidLimit            = "limit must be a positive integer"
	msgInvalidOffset           = "offset must be a non-negative integer"
	msgInvalidStatus           = "invalid status"
	msgInvalidMetadata         = "metadata must be a JSON object"
	msgInvalidMultipart        = "invalid multipart form"
	msgInvalidSkipProcessing   = "skip_processing must be a boolean"
	msgFileTooLarge            = "file exceeds the upload size limit"
	msgOpenFileFail            = "failed to read uploaded file"
	msgIDsRequired             = "ids must not be empty"
	msgTooManyIDs              = "too many ids in one request"
	msgUnknownBucket           = "unknown bucket"
	msgInvalidSignature        = "invalid or expired signature"
	msgEmptyBody               = "request body is empty"
	msgUploadFail              = "failed to store object"
	msgInvalidKey              = "invalid object key"
	msgInvalidTTL              = "ttl_seconds must be positive"
	msgSignFail                = "failed to sign upload"
	msgUserNotAuthenticated    = "user not authenticated"
	msgAssetDeleted            = "asset deleted"
	msgInternalServerError     = "internal server error"
)
