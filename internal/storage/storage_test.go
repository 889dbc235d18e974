package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"testing"
)

type fakeStore struct {
	objects map[string][]byte // key -> content; ETag derived from content
	listErr error
	getErrs map[string]error
}

func newFakeStore(objects map[string]string) *fakeStore {
	s := &fakeStore{objects: map[string][]byte{}, getErrs: map[string]error{}}
	for k, v := range objects {
		s.objects[k] = []byte(v)
	}
	return s
}

func etagOf(content []byte) string { return string(content) } // good enough for tests

func (s *fakeStore) List(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var infos []ObjectInfo
	for k, v := range s.objects {
		infos = append(infos, ObjectInfo{Key: k, ETag: etagOf(v), Size: int64(len(v))})
	}
	return infos, nil
}

func (s *fakeStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := s.getErrs[key]; err != nil {
		return nil, ObjectInfo{}, err
	}
	content := s.objects[key]
	info := ObjectInfo{Key: key, ETag: etagOf(content), Size: int64(len(content))}
	return io.NopCloser(bytes.NewReader(content)), info, nil
}

func (s *fakeStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = content
	return nil
}

func quietMirror(source, target Store) *Mirror {
	return NewMirror(source, target, log.New(io.Discard, "", 0))
}

func TestPlanCopiesSkipsMatchingETags(t *testing.T) {
	source := []ObjectInfo{
		{Key: "a.png", ETag: "e1"},
		{Key: "b.png", ETag: "e2"},
		{Key: "c.png", ETag: "e3"},
	}
	target := []ObjectInfo{
		{Key: "a.png", ETag: "e1"},      // identical, skipped
		{Key: "b.png", ETag: "other"},   // differs, copied
		{Key: "stale.png", ETag: "e9"}, // target-only, left alone
	}

	got := PlanCopies(source, target)
	want := []string{"b.png", "c.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("plan = %v, want %v", got, want)
	}
}

func TestRunCopiesTheDelta(t *testing.T) {
	source := newFakeStore(map[string]string{
		"same.txt": "unchanged",
		"new.txt":  "fresh",
	})
	target := newFakeStore(map[string]string{
		"same.txt": "unchanged",
	})

	copied, failed, err := quietMirror(source, target).Run(context.Background(), "assets")
	if err != nil {
		t.Fatal(err)
	}
	if copied != 1 || failed != 0 {
		t.Errorf("copied/failed = %d/%d, want 1/0", copied, failed)
	}
	if got := string(target.objects["new.txt"]); got != "fresh" {
		t.Errorf("new.txt on target = %q", got)
	}
}

func TestRunContinuesPastCopyFailures(t *testing.T) {
	source := newFakeStore(map[string]string{
		"bad.txt":  "x",
		"good.txt": "y",
	})
	source.getErrs["bad.txt"] = errors.New("read timeout")
	target := newFakeStore(nil)

	copied, failed, err := quietMirror(source, target).Run(context.Background(), "assets")
	if err != nil {
		t.Fatal(err)
	}
	if copied != 1 || failed != 1 {
		t.Errorf("copied/failed = %d/%d, want 1/1", copied, failed)
	}
	if _, ok := target.objects["good.txt"]; !ok {
		t.Error("good.txt not copied despite bad.txt failing")
	}
}

func TestRunAbortsWhenListingFails(t *testing.T) {
	source := newFakeStore(nil)
	source.listErr = errors.New("endpoint unreachable")

	if _, _, err := quietMirror(source, newFakeStore(nil)).Run(context.Background(), "assets"); err == nil {
		t.Error("expected listing failure to abort the mirror")
	}
}
