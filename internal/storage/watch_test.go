package storage

import (
	"context"
	"testing"
	"time"
)

func TestWatch_NotifiesOnSave(t *testing.T) {
	dir := t.TempDir()
	repo := NewFileAnnotationRepository(dir, "rick-morty-storage")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 8)
	if err := Watch(ctx, repo.Location(), func() { changed <- struct{}{} }, nil); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := repo.SaveAnnotations(sampleAnnotations()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification after save")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent/dir/file.yaml", func() {}, nil)
	if err == nil {
		t.Error("expected error watching a missing directory")
	}
}
