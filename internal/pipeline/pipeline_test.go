package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/lehigh-university-libraries/tagsync/internal/gdrive"
	"github.com/lehigh-university-libraries/tagsync/internal/models"
)

type fakeExtractor struct {
	tags map[string]string
	errs map[string]error
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	name := filepath.Base(path)
	if err := f.errs[name]; err != nil {
		return "", err
	}
	return f.tags[name], nil
}

type fakeLocator struct {
	files        map[string]string // name -> id
	descriptions map[string]string // name -> current description
	err          error
	calls []string
}

func (f *fakeLocator) Locate(_ context.Context, folderID, name string) (*models.RemoteFile, error) {
	f.calls = append(f.calls, folderID+"/"+name)
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.files[name]
	if !ok {
		return nil, gdrive.ErrNotFound
	}
	return &models.RemoteFile{ID: id, Name: name, Description: f.descriptions[name]}, nil
}

// fakeUpdater batches like the Drive client and records what it was sent
type fakeUpdater struct {
	batchSize  int
	batches    [][]models.UpdateEntry
	failIDs    map[string]bool
	updateErr  error
	calledWith []models.UpdateEntry
}

func (f *fakeUpdater) Update(_ context.Context, entries []models.UpdateEntry) ([]models.UpdateResult, error) {
	f.calledWith = append(f.calledWith, entries...)
	if f.updateErr != nil {
		return nil, f.updateErr
	}

	var results []models.UpdateResult
	for _, chunk := range gdrive.Chunk(entries, f.batchSize) {
		f.batches = append(f.batches, chunk)
		for _, e := range chunk {
			r := models.UpdateResult{Entry: e, Name: e.LocalName}
			if f.failIDs[e.FileID] {
				r.Err = errors.New("forbidden")
			}
			results = append(results, r)
		}
	}
	return results, nil
}

func makeImagesDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
	}
	return dir
}

func TestListImages(t *testing.T) {
	dir := makeImagesDir(t, "b.PNG", "a.jpg", "c.jpeg", "notes.txt", "raw.cr2")
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested.jpg", "deep.jpg"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	images, err := ListImages(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var names []string
	for _, img := range images {
		names = append(names, img.Name)
		if img.Path != filepath.Join(dir, img.Name) {
			t.Errorf("Unexpected path %s", img.Path)
		}
	}
	expected := []string{"a.jpg", "b.PNG", "c.jpeg"}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("Expected %v, got %v", expected, names)
	}
}

func TestListImagesFollowsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}

	target := makeImagesDir(t, "real.jpg")
	dir := makeImagesDir(t, "a.jpg")
	links := map[string]string{
		"linked.png":   filepath.Join(target, "real.jpg"),
		"dangling.jpg": filepath.Join(target, "missing.jpg"),
		"folder.jpg":   target,
	}
	for name, dest := range links {
		if err := os.Symlink(dest, filepath.Join(dir, name)); err != nil {
			t.Fatalf("Failed to create symlink %s: %v", name, err)
		}
	}

	images, err := ListImages(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var names []string
	for _, img := range images {
		names = append(names, img.Name)
	}
	expected := []string{"a.jpg", "linked.png"}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("Expected %v, got %v", expected, names)
	}
}

func TestListImagesMissingDir(t *testing.T) {
	if _, err := ListImages(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestRunScenario(t *testing.T) {
	dir := makeImagesDir(t, "cat.jpg", "dog.png")
	extractor := &fakeExtractor{tags: map[string]string{"cat.jpg": "pet,animal", "dog.png": ""}}
	locator := &fakeLocator{files: map[string]string{"cat.jpg": "id-cat", "bird.jpg": "id-bird"}}
	updater := &fakeUpdater{batchSize: 100}

	p := New(extractor, locator, updater, Options{ImagesDir: dir, FolderID: "folder1"})
	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := []models.UpdateEntry{{FileID: "id-cat", Description: "pet,animal", LocalName: "cat.jpg"}}
	if !reflect.DeepEqual(updater.calledWith, expected) {
		t.Errorf("Expected entries %+v, got %+v", expected, updater.calledWith)
	}

	if summary.Updated != 1 || summary.Skipped != 1 || summary.Failed != 0 {
		t.Errorf("Unexpected counts: updated=%d skipped=%d failed=%d", summary.Updated, summary.Skipped, summary.Failed)
	}

	// dog.png has no tags so it must never reach the locator
	if !reflect.DeepEqual(locator.calls, []string{"folder1/cat.jpg"}) {
		t.Errorf("Unexpected locator calls: %v", locator.calls)
	}

	statuses := map[string]models.Status{}
	for _, f := range summary.Files {
		statuses[f.Name] = f.Status
	}
	if statuses["cat.jpg"] != models.StatusUpdated || statuses["dog.png"] != models.StatusSkipped {
		t.Errorf("Unexpected statuses: %v", statuses)
	}
}

func TestRunSkipsAndFailures(t *testing.T) {
	dir := makeImagesDir(t, "a.jpg", "b.jpg", "c.jpg", "d.jpg")
	extractor := &fakeExtractor{
		tags: map[string]string{"a.jpg": "one", "b.jpg": "two", "d.jpg": "four"},
		errs: map[string]error{"c.jpg": errors.New("exiftool: exit status 1")},
	}
	locator := &fakeLocator{files: map[string]string{"a.jpg": "id-a", "d.jpg": "id-d"}}
	updater := &fakeUpdater{batchSize: 100, failIDs: map[string]bool{"id-d": true}}

	summary, err := New(extractor, locator, updater, Options{ImagesDir: dir, FolderID: "f"}).Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		status models.Status
		reason string
	}{
		{name: "a.jpg", status: models.StatusUpdated},
		{name: "b.jpg", status: models.StatusSkipped, reason: "no remote match"},
		{name: "c.jpg", status: models.StatusFailed, reason: "exiftool: exit status 1"},
		{name: "d.jpg", status: models.StatusFailed, reason: "forbidden"},
	}
	for i, tt := range tests {
		f := summary.Files[i]
		if f.Name != tt.name || f.Status != tt.status || f.Reason != tt.reason {
			t.Errorf("File %d: expected %+v, got %+v", i, tt, f)
		}
	}

	if summary.Updated != 1 || summary.Skipped != 1 || summary.Failed != 2 {
		t.Errorf("Unexpected counts: updated=%d skipped=%d failed=%d", summary.Updated, summary.Skipped, summary.Failed)
	}
}

func TestRunLocatorError(t *testing.T) {
	dir := makeImagesDir(t, "a.jpg")
	extractor := &fakeExtractor{tags: map[string]string{"a.jpg": "one"}}
	locator := &fakeLocator{err: fmt.Errorf("googleapi: Error 500")}
	updater := &fakeUpdater{batchSize: 100}

	summary, err := New(extractor, locator, updater, Options{ImagesDir: dir}).Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("Expected 1 failure, got %d", summary.Failed)
	}
	if len(updater.calledWith) != 0 {
		t.Error("Updater should not be called when nothing is queued")
	}
}

func TestRunUpdaterError(t *testing.T) {
	dir := makeImagesDir(t, "a.jpg", "b.jpg")
	extractor := &fakeExtractor{tags: map[string]string{"a.jpg": "one", "b.jpg": "two"}}
	locator := &fakeLocator{files: map[string]string{"a.jpg": "id-a", "b.jpg": "id-b"}}
	updater := &fakeUpdater{updateErr: context.Canceled}

	summary, err := New(extractor, locator, updater, Options{ImagesDir: dir}).Run(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if summary.Failed != 2 {
		t.Errorf("Expected both unsent entries failed, got %d", summary.Failed)
	}
}

func TestRunBatchesLargeFolder(t *testing.T) {
	var names []string
	tags := map[string]string{}
	files := map[string]string{}
	for i := 0; i < 250; i++ {
		name := fmt.Sprintf("img%03d.jpg", i)
		names = append(names, name)
		tags[name] = fmt.Sprintf("tag%d", i)
		files[name] = fmt.Sprintf("id%03d", i)
	}
	dir := makeImagesDir(t, names...)
	updater := &fakeUpdater{batchSize: 100}

	summary, err := New(&fakeExtractor{tags: tags}, &fakeLocator{files: files}, updater, Options{ImagesDir: dir}).Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(updater.batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(updater.batches))
	}
	for i, expected := range []int{100, 100, 50} {
		if len(updater.batches[i]) != expected {
			t.Errorf("Batch %d: expected %d entries, got %d", i, expected, len(updater.batches[i]))
		}
	}
	if summary.Updated != 250 {
		t.Errorf("Expected 250 updated, got %d", summary.Updated)
	}
}

func TestRunDryRun(t *testing.T) {
	dir := makeImagesDir(t, "cat.jpg")
	updater := &fakeUpdater{batchSize: 100}
	p := New(
		&fakeExtractor{tags: map[string]string{"cat.jpg": "pet"}},
		&fakeLocator{files: map[string]string{"cat.jpg": "id-cat"}},
		updater,
		Options{ImagesDir: dir, DryRun: true},
	)

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Queued != 1 || len(summary.Entries) != 1 {
		t.Errorf("Expected 1 queued entry, got queued=%d entries=%d", summary.Queued, len(summary.Entries))
	}
	if len(updater.calledWith) != 0 {
		t.Error("Dry run must not call the updater")
	}
	if summary.Files[0].Status != models.StatusQueued {
		t.Errorf("Expected queued status, got %s", summary.Files[0].Status)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	dir := makeImagesDir(t, "cat.jpg", "fox.png")
	extractor := &fakeExtractor{tags: map[string]string{"cat.jpg": "pet", "fox.png": "wild, orange"}}
	locator := &fakeLocator{files: map[string]string{"cat.jpg": "id-cat", "fox.png": "id-fox"}}

	first := &fakeUpdater{batchSize: 100}
	second := &fakeUpdater{batchSize: 100}
	opts := Options{ImagesDir: dir, FolderID: "f"}

	if _, err := New(extractor, locator, first, opts).Run(context.Background()); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if _, err := New(extractor, locator, second, opts).Run(context.Background()); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if !reflect.DeepEqual(first.calledWith, second.calledWith) {
		t.Errorf("Runs differ:\n%+v\n%+v", first.calledWith, second.calledWith)
	}
}

func TestRunUpdatesCurrentDescription(t *testing.T) {
	dir := makeImagesDir(t, "cat.jpg")
	locator := &fakeLocator{
		files:        map[string]string{"cat.jpg": "id-cat"},
		descriptions: map[string]string{"cat.jpg": "pet"},
	}
	updater := &fakeUpdater{batchSize: 100}

	summary, err := New(&fakeExtractor{tags: map[string]string{"cat.jpg": "pet"}}, locator, updater, Options{ImagesDir: dir}).Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := []models.UpdateEntry{{FileID: "id-cat", Description: "pet", LocalName: "cat.jpg"}}
	if !reflect.DeepEqual(updater.calledWith, expected) {
		t.Errorf("Expected unchanged description to be sent again, got %+v", updater.calledWith)
	}
	if summary.Updated != 1 {
		t.Errorf("Expected 1 updated, got %d", summary.Updated)
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	updater := &fakeUpdater{}
	summary, err := New(&fakeExtractor{}, &fakeLocator{}, updater, Options{ImagesDir: t.TempDir()}).Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(summary.Files) != 0 || len(updater.calledWith) != 0 {
		t.Error("Expected nothing processed for an empty directory")
	}
}
