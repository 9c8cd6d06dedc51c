package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	envWorkerAPIBaseURL   = "ASSET_API_BASE_URL"
	envWorkerListenPort   = "WORKER_LISTEN_PORT"
	envWorkerPollBatch    = "WORKER_POLL_BATCH"
	envWorkerHTTPTimeout  = "WORKER_HTTP_TIMEOUT"
	envWorkerDrainTimeout = "WORKER_DRAIN_TIMEOUT"

	defaultWorkerListenPort   = "8090"
	defaultWorkerPollBatch    = 5
	defaultWorkerHTTPTimeout  = 60 * time.Second
	defaultWorkerDrainTimeout = 10 * time.Minute

	errWorkerBaseURLRequiredFmt = "ASSET_API_BASE_URL must be set"
)

// WorkerProcessConfig configures the reference worker binary. It never holds
// standing credentials: every drain runs on the token delivered by a wake call.
type WorkerProcessConfig struct {
	APIBaseURL   string
	ListenPort   string
	PollBatch    int
	HTTPTimeout  time.Duration
	DrainTimeout time.Duration
	LogMode      string
}

func LoadWorker() (*WorkerProcessConfig, error) {
	cfg := &WorkerProcessConfig{
		APIBaseURL:   strings.TrimRight(getEnv(envWorkerAPIBaseURL, ""), "/"),
		ListenPort:   getEnv(envWorkerListenPort, defaultWorkerListenPort),
		PollBatch:    getIntEnv(envWorkerPollBatch, defaultWorkerPollBatch),
		HTTPTimeout:  getDurationEnv(envWorkerHTTPTimeout, defaultWorkerHTTPTimeout),
		DrainTimeout: getDurationEnv(envWorkerDrainTimeout, defaultWorkerDrainTimeout),
		LogMode:      getEnv(envLogMode, defaultLogMode),
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf(errInvalidConfigurationFmt, fmt.Errorf(errWorkerBaseURLRequiredFmt))
	}

	if cfg.PollBatch <= 0 {
		return nil, fmt.Errorf(errInvalidConfigurationFmt, fmt.Errorf(errPositiveValueFmt, envWorkerPollBatch))
	}

	return cfg, nil
}
