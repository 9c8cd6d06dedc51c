package assets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/domain/job"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu     sync.Mutex
	assets map[uuid.UUID]*asset.Asset
}

func newFakeStore() *fakeStore {
	return &fakeStore{assets: map[uuid.UUID]*asset.Asset{}}
}

func clone(a *asset.Asset) *asset.Asset {
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	return &c
}

func (s *fakeStore) put(a *asset.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = clone(a)
}

func (s *fakeStore) Create(_ context.Context, in asset.CreateAssetInput) (*asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.assets {
		if a.Code == in.Code {
			return nil, apperrors.Conflict("asset code already allocated")
		}
	}

	now := time.Now()
	a := &asset.Asset{
		ID:           uuid.New(),
		Code:         in.Code,
		Slug:         in.Slug,
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		Skill:        in.Skill,
		Tags:         in.Tags,
		ThumbnailKey: in.ThumbnailKey,
		DocumentKey:  in.DocumentKey,
		Status:       in.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.assets[a.ID] = a
	return clone(a), nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, apperrors.NotFound("asset not found")
	}
	return clone(a), nil
}

func (s *fakeStore) GetByCode(_ context.Context, code string) (*asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.assets {
		if a.Code == code {
			return clone(a), nil
		}
	}
	return nil, apperrors.NotFound("asset not found")
}

func (s *fakeStore) List(_ context.Context, filter asset.ListAssetsFilter) ([]*asset.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*asset.Asset
	for _, a := range s.assets {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		out = append(out, clone(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, id uuid.UUID, in asset.UpdateAssetInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[id]
	if !ok {
		return apperrors.NotFound("asset not found")
	}

	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setPtr := func(dst **string, v *string) {
		if v != nil {
			val := *v
			*dst = &val
		}
	}

	setStr(&a.Title, in.Title)
	setStr(&a.Description, in.Description)
	setStr(&a.Category, in.Category)
	setStr(&a.Skill, in.Skill)
	setStr(&a.Slug, in.Slug)
	if in.Tags != nil {
		a.Tags = in.Tags
	}
	setPtr(&a.ThumbnailKey, in.ThumbnailKey)
	setPtr(&a.DocumentKey, in.DocumentKey)
	setPtr(&a.PreviewKey, in.PreviewKey)
	setPtr(&a.SourceKey, in.SourceKey)
	if in.Status != nil {
		a.Status = *in.Status
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[id]; !ok {
		return apperrors.NotFound("asset not found")
	}
	delete(s.assets, id)
	return nil
}

// fakeCodes hands out scripted numbers first, then counts per prefix.
type fakeCodes struct {
	mu       sync.Mutex
	scripted []int64
	counters map[string]int64
}

func newFakeCodes(scripted ...int64) *fakeCodes {
	return &fakeCodes{scripted: scripted, counters: map[string]int64{}}
}

func (c *fakeCodes) NextForPrefix(_ context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.scripted) > 0 {
		n := c.scripted[0]
		c.scripted = c.scripted[1:]
		return n, nil
	}
	c.counters[prefix]++
	return c.counters[prefix], nil
}

type objectRef struct {
	bucket asset.Bucket
	key    string
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[objectRef][]byte
	failKey map[string]error
	deletes []objectRef
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[objectRef][]byte{}, failKey: map[string]error{}}
}

func (o *fakeObjects) Put(_ context.Context, bucket asset.Bucket, key string, body io.ReadSeeker, _ string) error {
	o.mu.Lock()
	failure := o.failKey[key]
	o.mu.Unlock()
	if failure != nil {
		return failure
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[objectRef{bucket, key}] = data
	return nil
}

func (o *fakeObjects) Delete(_ context.Context, bucket asset.Bucket, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deletes = append(o.deletes, objectRef{bucket, key})
	delete(o.objects, objectRef{bucket, key})
	return nil
}

func (o *fakeObjects) has(bucket asset.Bucket, key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[objectRef{bucket, key}]
	return ok
}

func (o *fakeObjects) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.objects)
}

type fakeJobs struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*job.Job
	fail    error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{pending: map[uuid.UUID]*job.Job{}}
}

func (q *fakeJobs) Enqueue(_ context.Context, assetID uuid.UUID, jobType job.Type) (*job.Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.fail != nil {
		return nil, false, q.fail
	}
	if j, ok := q.pending[assetID]; ok {
		return j, false, nil
	}
	j := &job.Job{ID: uuid.New(), AssetID: assetID, Type: jobType, Status: job.StatusPending}
	q.pending[assetID] = j
	return j, true, nil
}

type wakeCall struct {
	reason string
	token  string
}

type fakeWaker struct {
	mu    sync.Mutex
	calls []wakeCall
}

func (w *fakeWaker) WakeAsync(reason, token string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, wakeCall{reason, token})
}

func (w *fakeWaker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

type fakeTokens struct {
	mu     sync.Mutex
	issued int
}

func (t *fakeTokens) Issue(scope string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if scope == "" {
		return "", errors.New("empty scope")
	}
	t.issued++
	return "token-" + scope, nil
}

func fileOf(slot asset.UploadSlot, filename, content string) Upload {
	return Upload{
		Slot:        slot,
		Filename:    filename,
		ContentType: "application/octet-stream",
		Size:        int64(len(content)),
		Body:        bytes.NewReader([]byte(content)),
	}
}

func strPtr(s string) *string { return &s }
