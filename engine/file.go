package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// joinErr aggregates independent failures without dropping any of them,
// following the teacher's errors.Join call sites but through multierr so the
// combined error still supports errors.Is/As against any constituent.
func joinErr(existing, next error) error {
	return multierr.Append(existing, next)
}

// segmentFileName renders the <prefix>_<timestamp_ms>[_<counter>].data
// pattern from §6. counter is omitted when zero.
func segmentFileName(prefix string, timestampMs int64, counter int) string {
	if counter == 0 {
		return fmt.Sprintf("%s_%d.data", prefix, timestampMs)
	}
	return fmt.Sprintf("%s_%d_%d.data", prefix, timestampMs, counter)
}

func segmentPathIn(dir, name string) string {
	return filepath.Join(dir, name)
}

// matchesSegmentName reports whether name looks like a segment file produced
// for the given prefix, i.e. "<prefix>_<digits>[_<digits>].data".
func matchesSegmentName(name, prefix string) bool {
	rest, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return false
	}
	rest, ok = strings.CutSuffix(rest, ".data")
	if !ok {
		return false
	}

	parts := strings.Split(rest, "_")
	if len(parts) < 1 || len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.ParseInt(p, 10, 64); err != nil {
			return false
		}
	}
	return true
}

// createSegmentFileDurable creates a new, empty segment file for writing,
// following the teacher's createFileDurable. It only creates the file: the
// caller fsyncs the file after writing it and then calls fsyncDir on the
// containing directory so the new directory entry survives a crash.
func createSegmentFileDurable(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create segment %q: %v", ErrIoError, path, err)
	}
	return f, nil
}

// removeSegmentFile deletes a segment file, ignoring a missing file (already
// gone is not a failure worth surfacing during cleanup).
func removeSegmentFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %q: %v", ErrIoError, path, err)
	}
	return nil
}

// fsyncDir fsyncs the directory entry so a newly created/renamed file's
// presence is itself durable, not just its contents.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("%w: open dir %q: %v", ErrIoError, dir, err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("%w: sync dir %q: %v", ErrIoError, dir, err)
	}
	return nil
}
