package backup

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/ChaoticEnigma/zfs3backup/internal/domain"
	"github.com/ChaoticEnigma/zfs3backup/internal/repository"
	apperrors "github.com/ChaoticEnigma/zfs3backup/pkg/errors"
)

func notFoundErr(what string) error {
	return apperrors.Newf(apperrors.ErrCodeNotFound, "%s not found", what)
}

// discardBodyThreshold keeps the fake store's memory bounded in the
// large-stream scenario: bodies above it are hashed and dropped.
const discardBodyThreshold = 1 << 20

type fakeObject struct {
	body     []byte
	size     int64
	checksum string
	metadata repository.ObjectMetadata
}

// fakeStorage is an in-memory StorageRepository with scripted
// failures and an in-flight put gauge for concurrency assertions.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	putErrs map[string][]error

	inFlight    int
	maxInFlight int
	putHold     time.Duration

	discardBodies bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		objects: make(map[string]fakeObject),
		putErrs: make(map[string][]error),
	}
}

// failPut schedules errors for successive puts of key, consumed in order.
func (f *fakeStorage) failPut(key string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putErrs[key] = append(f.putErrs[key], errs...)
}

func (f *fakeStorage) Put(ctx context.Context, key string, data io.Reader, metadata *repository.ObjectMetadata) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	var scripted error
	if errs := f.putErrs[key]; len(errs) > 0 {
		scripted, f.putErrs[key] = errs[0], errs[1:]
	}
	hold := f.putHold
	f.mu.Unlock()

	if hold > 0 {
		time.Sleep(hold)
	}

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if scripted != nil {
		return scripted
	}

	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	obj := fakeObject{size: int64(len(body)), body: body}
	if metadata != nil {
		obj.metadata = *metadata
		obj.checksum = metadata.CustomMetadata[domain.MetaChecksum]
	}
	if f.discardBodies && len(body) > discardBodyThreshold {
		obj.body = nil
	}

	f.mu.Lock()
	f.objects[key] = obj
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, *repository.ObjectMetadata, error) {
	f.mu.Lock()
	obj, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, nil, notFoundErr(key)
	}
	metadata := obj.metadata
	metadata.Key = key
	metadata.Size = obj.size
	return io.NopCloser(bytes.NewReader(obj.body)), &metadata, nil
}

func (f *fakeStorage) List(ctx context.Context, prefix string) ([]*repository.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var infos []*repository.ObjectInfo
	for key, obj := range f.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, &repository.ObjectInfo{Key: key, Size: obj.size})
		}
	}
	return infos, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStorage) GetMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	f.mu.Lock()
	obj, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, notFoundErr(key)
	}
	metadata := obj.metadata
	metadata.Key = key
	metadata.Size = obj.size
	return &metadata, nil
}

func (f *fakeStorage) Close() error                          { return nil }
func (f *fakeStorage) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeStorage) maxObservedInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeStorage) keys(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// fakeSnapshots serves canned snapshot chains and streams.
type fakeSnapshots struct {
	refs     []*domain.SnapshotRef
	streams  map[string]func() io.ReadCloser
	estimate int64
}

func newFakeSnapshots(refs ...*domain.SnapshotRef) *fakeSnapshots {
	return &fakeSnapshots{
		refs:    refs,
		streams: make(map[string]func() io.ReadCloser),
	}
}

func (f *fakeSnapshots) setStream(ref *domain.SnapshotRef, body []byte) {
	f.streams[ref.FullName()] = func() io.ReadCloser {
		return io.NopCloser(bytes.NewReader(body))
	}
}

func (f *fakeSnapshots) List(ctx context.Context) ([]*domain.SnapshotRef, error) {
	return f.refs, nil
}

func (f *fakeSnapshots) Latest(ctx context.Context) (*domain.SnapshotRef, error) {
	if len(f.refs) == 0 {
		return nil, notFoundErr("latest snapshot")
	}
	return f.refs[len(f.refs)-1], nil
}

func (f *fakeSnapshots) Get(ctx context.Context, fullName string) (*domain.SnapshotRef, error) {
	for _, ref := range f.refs {
		if ref.FullName() == fullName {
			return ref, nil
		}
	}
	return nil, notFoundErr(fullName)
}

func (f *fakeSnapshots) EstimateSize(ctx context.Context, ref, parent *domain.SnapshotRef) (int64, error) {
	return f.estimate, nil
}

func (f *fakeSnapshots) OpenStream(ctx context.Context, ref, parent *domain.SnapshotRef) (io.ReadCloser, error) {
	open, ok := f.streams[ref.FullName()]
	if !ok {
		return nil, notFoundErr(ref.FullName())
	}
	return open(), nil
}

// instantClock satisfies the juju clock interface without real
// waiting; every timer and alarm fires immediately. Recorded delays
// let tests assert on the backoff schedule.
type instantClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

var _ clock.Clock = (*instantClock)(nil)

func newInstantClock() *instantClock {
	return &instantClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *instantClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	f()
	return &firedTimer{}
}

func (c *instantClock) NewTimer(d time.Duration) clock.Timer {
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return &firedTimer{ch: ch}
}

func (c *instantClock) At(t time.Time) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *instantClock) AtFunc(t time.Time, f func()) clock.Alarm {
	f()
	return &firedAlarm{}
}

func (c *instantClock) NewAlarm(t time.Time) clock.Alarm {
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return &firedAlarm{ch: ch}
}

func (c *instantClock) recordedDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

type firedTimer struct {
	ch chan time.Time
}

func (t *firedTimer) Chan() <-chan time.Time {
	if t.ch == nil {
		t.ch = make(chan time.Time, 1)
		t.ch <- time.Time{}
	}
	return t.ch
}

func (t *firedTimer) Reset(d time.Duration) bool { return false }
func (t *firedTimer) Stop() bool                 { return false }

type firedAlarm struct {
	ch chan time.Time
}

func (a *firedAlarm) Chan() <-chan time.Time {
	if a.ch == nil {
		a.ch = make(chan time.Time, 1)
		a.ch <- time.Time{}
	}
	return a.ch
}

func (a *firedAlarm) Reset(t time.Time) bool { return false }
func (a *firedAlarm) Stop() bool             { return false }
