package postgres

import (
	"fmt"
	"time"
)

const (
	poolHealthCheckPeriod = time.Minute
	poolMaxConnLifetime   = time.Hour
	poolMaxConnIdleTime   = 30 * time.Minute
	dbPingTimeout         = 5 * time.Second

	counterPrefixNamespace = "code:"
	enqueueMaxRounds       = 3

	constraintAssetCode = "assets_asset_code_key"

	errAssetNotFound      = "asset not found"
	errJobNotFound        = "processing job not found"
	errUserNotFound       = "user not found"
	errAssetCodeTaken     = "asset code already allocated"
	errJobTransitionStale = "job is not in the expected status"
	errCounterNameEmpty   = "counter name cannot be empty"
	errPrefixEmpty        = "prefix cannot be empty"
	errMissingTablesFmt   = "schema applied but tables are missing: %v"

	errFailedParseDatabaseConfigFmt  = "failed to parse database config: %w"
	errFailedCreateConnectionPoolFmt = "failed to create connection pool: %w"
	errFailedPingDatabaseFmt         = "failed to ping database: %w"
	errFailedApplySchemaFmt          = "failed to apply schema: %w"
	errFailedVerifySchemaFmt         = "failed to verify schema: %w"

	errFailedStartTransactionFmt  = "failed to start transaction: %w"
	errFailedCommitTransactionFmt = "failed to commit transaction: %w"

	errFailedNextSequenceFmt = "failed to advance sequence: %w"

	errFailedCreateAssetFmt     = "failed to create asset: %w"
	errFailedGetAssetFmt        = "failed to get asset: %w"
	errFailedListAssetsFmt      = "failed to list assets: %w"
	errFailedScanAssetFmt       = "failed to scan asset: %w"
	errFailedUpdateAssetFmt     = "failed to update asset: %w"
	errFailedDeleteAssetFmt     = "failed to delete asset: %w"
	errFailedDeleteDependentFmt = "failed to delete %s rows: %w"

	errFailedEnqueueJobFmt    = "failed to enqueue job: %w"
	errFailedGetJobFmt        = "failed to get job: %w"
	errFailedListJobsFmt      = "failed to list pending jobs: %w"
	errFailedScanJobFmt       = "failed to scan job: %w"
	errFailedTransitionJobFmt = "failed to transition job: %w"
	errFailedRequeueJobsFmt   = "failed to requeue expired jobs: %w"
	errFailedFailJobsFmt      = "failed to fail expired jobs: %w"

	errFailedRecordDownloadFmt  = "failed to record download: %w"
	errFailedGetSubscriberFmt   = "failed to get subscriber: %w"
	errFailedInsertAuditFmt     = "failed to insert audit event: %w"
	errFailedMarshalMetadataFmt = "failed to marshal audit metadata: %w"
)

var (
	errFailedApplySchema          = func(err error) error { return fmt.Errorf(errFailedApplySchemaFmt, err) }
	errFailedCommitTransaction    = func(err error) error { return fmt.Errorf(errFailedCommitTransactionFmt, err) }
	errFailedCreateAsset          = func(err error) error { return fmt.Errorf(errFailedCreateAssetFmt, err) }
	errFailedCreateConnectionPool = func(err error) error { return fmt.Errorf(errFailedCreateConnectionPoolFmt, err) }
	errFailedDeleteAsset          = func(err error) error { return fmt.Errorf(errFailedDeleteAssetFmt, err) }
	errFailedDeleteDependent      = func(table string, err error) error { return fmt.Errorf(errFailedDeleteDependentFmt, table, err) }
	errFailedEnqueueJob           = func(err error) error { return fmt.Errorf(errFailedEnqueueJobFmt, err) }
	errFailedFailJobs             = func(err error) error { return fmt.Errorf(errFailedFailJobsFmt, err) }
	errFailedGetAsset             = func(err error) error { return fmt.Errorf(errFailedGetAssetFmt, err) }
	errFailedGetJob               = func(err error) error { return fmt.Errorf(errFailedGetJobFmt, err) }
	errFailedGetSubscriber        = func(err error) error { return fmt.Errorf(errFailedGetSubscriberFmt, err) }
	errFailedInsertAudit          = func(err error) error { return fmt.Errorf(errFailedInsertAuditFmt, err) }
	errFailedListAssets           = func(err error) error { return fmt.Errorf(errFailedListAssetsFmt, err) }
	errFailedListJobs             = func(err error) error { return fmt.Errorf(errFailedListJobsFmt, err) }
	errFailedMarshalMetadata      = func(err error) error { return fmt.Errorf(errFailedMarshalMetadataFmt, err) }
	errFailedNextSequence         = func(err error) error { return fmt.Errorf(errFailedNextSequenceFmt, err) }
	errFailedParseDatabaseConfig  = func(err error) error { return fmt.Errorf(errFailedParseDatabaseConfigFmt, err) }
	errFailedPingDatabase         = func(err error) error { return fmt.Errorf(errFailedPingDatabaseFmt, err) }
	errFailedRecordDownload       = func(err error) error { return fmt.Errorf(errFailedRecordDownloadFmt, err) }
	errFailedRequeueJobs          = func(err error) error { return fmt.Errorf(errFailedRequeueJobsFmt, err) }
	errFailedScanAsset            = func(err error) error { return fmt.Errorf(errFailedScanAssetFmt, err) }
	errFailedScanJob              = func(err error) error { return fmt.Errorf(errFailedScanJobFmt, err) }
	errFailedStartTransaction     = func(err error) error { return fmt.Errorf(errFailedStartTransactionFmt, err) }
	errFailedTransitionJob        = func(err error) error { return fmt.Errorf(errFailedTransitionJobFmt, err) }
	errFailedUpdateAsset          = func(err error) error { return fmt.Errorf(errFailedUpdateAssetFmt, err) }
	errFailedVerifySchema         = func(err error) error { return fmt.Errorf(errFailedVerifySchemaFmt, err) }
)
