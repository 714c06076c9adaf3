package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
)

// Encode writes the snapshot as JSON.
func Encode(w io.Writer, snap *Snapshot, pretty bool) error {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(snap, "", "  ")
	} else {
		data, err = json.Marshal(snap)
	}
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n"))
	return err
}

// Decode reads a snapshot back from JSON. Summaries are recomputed from
// the decoded counts, so a round trip is a pure function of the
// executed/covered flags and execution counts.
func Decode(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", snap.Version, Version)
	}
	if snap.Files == nil {
		snap.Files = make(map[string]*FileCov)
	}
	snap.Recompute()
	return &snap, nil
}

// ReadFile loads a snapshot from disk.
func ReadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// WriteFile stores a snapshot on disk.
func WriteFile(path string, snap *Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Encode(f, snap, true)
}

// WriteFileLocked merges a snapshot into an on-disk snapshot file under
// an exclusive file lock, so parallel test workers can fold their results
// into one file without a coordinator. A missing file starts from the
// given snapshot alone.
func WriteFileLocked(path string, snap *Snapshot) error {
	fileLock := flock.New(path + ".lock")
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fileLock.Unlock() }()

	merged := snap
	existing, err := ReadFile(path)
	switch {
	case err == nil:
		merged = Merge(existing, snap)
	case errors.Is(err, os.ErrNotExist):
		// First worker to write wins the empty slot.
	default:
		// A corrupt file is an error; silently overwriting would discard
		// another worker's results.
		return fmt.Errorf("existing snapshot %s is unreadable: %w", path, err)
	}
	return WriteFile(path, merged)
}
