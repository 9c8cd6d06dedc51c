package queue

import "time"

const (
	defaultMaxAttempts  = 3
	defaultLease        = 15 * time.Minute
	defaultURLTTL       = 10 * time.Minute
	defaultPendingLimit = 10
	maxPendingLimit     = 50
	maxErrorMessageLen  = 2000

	sweepLockKey      = "lease-sweep"
	wakeReasonRequeue = "lease_requeue"
	wakeScopeSweep    = "sweep"
)

const (
	msgUnknownJobTypeFmt     = "unknown job type %q"
	msgInvalidStatusFmt      = "invalid job status %q"
	msgIllegalTransitionFmt  = "cannot move job from %s to %s"
	msgOutputsOnlyOnComplete = "outputs are only accepted with status completed"
	msgUnknownDerivativeFmt  = "unknown derivative %q"
	msgNonCanonicalKeyFmt    = "%s must be written to %s"
	msgAssetDeleted          = "asset deleted"
)
