package postgres_test

import (
	"reflect"
	"testing"

	"asset-pipeline/internal/assets"
	"asset-pipeline/internal/audit"
	"asset-pipeline/internal/download"
	"asset-pipeline/internal/queue"
	"asset-pipeline/internal/repository/postgres"

	"github.com/stretchr/testify/assert"
)

var (
	_ queue.JobStore       = (*postgres.JobRepository)(nil)
	_ queue.LeaseStore     = (*postgres.JobRepository)(nil)
	_ queue.AssetStore     = (*postgres.AssetRepository)(nil)
	_ assets.AssetStore    = (*postgres.AssetRepository)(nil)
	_ assets.CodeAllocator = (*postgres.SequenceRepository)(nil)
	_ download.AssetReader = (*postgres.AssetRepository)(nil)
	_ download.Subscribers = (*postgres.SubscriberRepository)(nil)
	_ download.Recorder    = (*postgres.EngagementRepository)(nil)
	_ audit.Store          = (*postgres.AuditRepository)(nil)
)

func methodNames(types ...reflect.Type) map[string]bool {
	names := map[string]bool{}
	for _, typ := range types {
		for i := 0; i < typ.NumMethod(); i++ {
			names[typ.Method(i).Name] = true
		}
	}
	return names
}

func portOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Every exported repository method is reachable through a service port.
func TestRepositories_NoUnusedMethods(t *testing.T) {
	cases := []struct {
		repo  reflect.Type
		ports []reflect.Type
	}{
		{
			repo:  reflect.TypeOf((*postgres.JobRepository)(nil)),
			ports: []reflect.Type{portOf[queue.JobStore](), portOf[queue.LeaseStore]()},
		},
		{
			repo:  reflect.TypeOf((*postgres.AssetRepository)(nil)),
			ports: []reflect.Type{portOf[assets.AssetStore](), portOf[queue.AssetStore](), portOf[download.AssetReader]()},
		},
	}

	for _, tc := range cases {
		used := methodNames(tc.ports...)
		for i := 0; i < tc.repo.NumMethod(); i++ {
			name := tc.repo.Method(i).Name
			assert.True(t, used[name], "%s.%s is not part of any port", tc.repo.Elem().Name(), name)
		}
	}
}
