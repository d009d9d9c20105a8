package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDiskFilesRoundTrip(t *testing.T) {
	files, err := NewDiskFiles(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	ref, err := files.SaveAudio(ctx, "../../meeting.mp3", "audio/mpeg", bytes.NewReader([]byte("ID3audio")), 8)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(ref, "/meeting.mp3") {
		t.Fatalf("unexpected ref %q", ref)
	}
	data, err := files.ReadAudio(ctx, ref)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "ID3audio" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestDiskFilesRejectsEscapes(t *testing.T) {
	files, err := NewDiskFiles(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, ref := range []string{"../etc/passwd", "/etc/passwd", "missing/file.wav"} {
		if _, err := files.ReadAudio(context.Background(), ref); !errors.Is(err, ErrFileNotFound) {
			t.Fatalf("%s: expected ErrFileNotFound, got %v", ref, err)
		}
	}
}
