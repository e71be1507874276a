// Package blobtest provides an in-memory blob.Client for tests.
package blobtest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/studioops/podmirror/internal/blob"
)

// FakeObject is a stored object plus the metadata the daemon round-trips.
type FakeObject struct {
	Data          []byte
	SourceModTime time.Time
}

// FakeClient is an in-memory blob.Client. All methods are safe for
// concurrent use. Error fields, when set, are returned by the matching
// method to simulate remote failures.
type FakeClient struct {
	mu         sync.Mutex
	containers map[string]map[string]FakeObject

	ProbeErr          error
	ListContainersErr error
	PutErr            error
	StatErr           error

	// PutCalls counts successful Put invocations, for idempotence checks.
	PutCalls int
}

// NewFakeClient returns an empty fake with the named containers pre-created.
func NewFakeClient(containers ...string) *FakeClient {
	f := &FakeClient{containers: make(map[string]map[string]FakeObject)}
	for _, c := range containers {
		f.containers[c] = make(map[string]FakeObject)
	}

	return f
}

func (f *FakeClient) ListContainers(_ context.Context) ([]blob.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListContainersErr != nil {
		return nil, f.ListContainersErr
	}

	out := make([]blob.Container, 0, len(f.containers))
	for name := range f.containers {
		out = append(out, blob.Container{Name: name})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (f *FakeClient) EnsureContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.containers[name]; !ok {
		f.containers[name] = make(map[string]FakeObject)
	}

	return nil
}

func (f *FakeClient) Probe(_ context.Context, container string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ProbeErr != nil {
		return f.ProbeErr
	}

	if _, ok := f.containers[container]; !ok {
		return fmt.Errorf("blobtest: no such container %s", container)
	}

	return nil
}

func (f *FakeClient) EnsurePrefix(_ context.Context, container, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	objs, ok := f.containers[container]
	if !ok {
		return fmt.Errorf("blobtest: no such container %s", container)
	}

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	objs[prefix] = FakeObject{}

	return nil
}

func (f *FakeClient) Stat(_ context.Context, container, key string) (*blob.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StatErr != nil {
		return nil, f.StatErr
	}

	objs, ok := f.containers[container]
	if !ok {
		return nil, fmt.Errorf("blobtest: no such container %s", container)
	}

	obj, ok := objs[key]
	if !ok {
		return nil, nil //nolint:nilnil // matches blob.Client contract
	}

	return &blob.Object{Key: key, Size: int64(len(obj.Data)), SourceModTime: obj.SourceModTime}, nil
}

func (f *FakeClient) Put(_ context.Context, container, key string, r io.Reader, _ int64, srcModTime time.Time) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PutErr != nil {
		return f.PutErr
	}

	objs, ok := f.containers[container]
	if !ok {
		return fmt.Errorf("blobtest: no such container %s", container)
	}

	objs[key] = FakeObject{Data: data, SourceModTime: srcModTime.UTC()}
	f.PutCalls++

	return nil
}

func (f *FakeClient) List(_ context.Context, container, prefix string) ([]blob.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objs, ok := f.containers[container]
	if !ok {
		return nil, fmt.Errorf("blobtest: no such container %s", container)
	}

	var out []blob.Object

	for key, obj := range objs {
		if strings.HasPrefix(key, prefix) {
			out = append(out, blob.Object{Key: key, Size: int64(len(obj.Data)), SourceModTime: obj.SourceModTime})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out, nil
}

// Object returns the stored object and whether it exists. Test inspection
// helper, not part of blob.Client.
func (f *FakeClient) Object(container, key string) (FakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objs, ok := f.containers[container]
	if !ok {
		return FakeObject{}, false
	}

	obj, ok := objs[key]

	return obj, ok
}

// Delete removes an object directly. Test setup helper — the daemon itself
// has no delete path.
func (f *FakeClient) Delete(container, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if objs, ok := f.containers[container]; ok {
		delete(objs, key)
	}
}

// Keys returns the sorted object keys in a container.
func (f *FakeClient) Keys(container string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.containers[container] {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

var _ blob.Client = (*FakeClient)(nil)
