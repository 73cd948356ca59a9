package recorder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rommelskii/foundation/internal/metrics"
)

func TestStartStopWritesFrames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	m := metrics.New()
	r := NewRecorder(dir, m)

	path, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.HasPrefix(path, dir) || !strings.HasSuffix(path, ".mjpeg") {
		t.Fatalf("path = %q", path)
	}
	if m.RecordingActive.Load() != 1 {
		t.Fatal("recording gauge not set")
	}

	frames := [][]byte{{0xff, 0xd8, 1, 0xff, 0xd9}, {0xff, 0xd8, 2, 0xff, 0xd9}}
	for _, f := range frames {
		// The writer may lag; retry until the frame is queued.
		deadline := time.Now().Add(time.Second)
		for !r.SendFrame(f) {
			if time.Now().After(deadline) {
				t.Fatal("frame never queued")
			}
			time.Sleep(time.Millisecond)
		}
	}

	stopped, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped != path {
		t.Fatalf("Stop returned %q, want %q", stopped, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if !bytes.Equal(data, bytes.Join(frames, nil)) {
		t.Fatalf("file contents = %x", data)
	}

	st := r.Status()
	if st.Recording || st.FrameCount != 2 || st.BytesWritten != uint64(len(data)) {
		t.Fatalf("status = %+v", st)
	}
	if m.RecordingActive.Load() != 0 || m.RecordingFrames.Load() != 2 {
		t.Fatal("metrics not updated on stop")
	}
}

func TestStartTwiceAndStopIdle(t *testing.T) {
	r := NewRecorder(t.TempDir(), nil)

	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop idle err = %v, want ErrNotRecording", err)
	}
	if _, err := r.Start("clip"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Start("other"); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRecording", err)
	}
	if st := r.Status(); !strings.HasSuffix(st.Filename, "clip.mjpeg") {
		t.Fatalf("filename = %q", st.Filename)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.SendFrame([]byte{1}) {
		t.Fatal("frame accepted after Close")
	}
}

func TestStartSanitisesFilename(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, nil)
	path, err := r.Start("../../escape")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Close()
	if filepath.Dir(path) != dir {
		t.Fatalf("recording written outside %s: %s", dir, path)
	}
}
