// Package chrono provides the saturating nanosecond-timestamp arithmetic
// that lets holdfast issue strictly monotonic modification times even when
// the wall clock steps backward between runs.
//
// Timestamps are represented as nanoseconds since the Unix epoch in a
// uint64. That representation saturates at roughly the year 2554 rather
// than wrapping.
package chrono

import (
	"os"
	"time"

	"github.com/holdfast-ci/holdfast/pkg/holderrors"
)

// MaxNanos is the largest representable timestamp, corresponding to
// 2554-07-21T23:34:33Z.
const MaxNanos uint64 = ^uint64(0)

// FromTime converts a time.Time to nanoseconds since the Unix epoch,
// saturating at MaxNanos and flooring at 0 rather than overflowing.
func FromTime(t time.Time) uint64 {
	if t.Before(time.Unix(0, 0)) {
		return 0
	}
	secs := uint64(t.Unix())
	if secs > MaxNanos/uint64(time.Second) {
		return MaxNanos
	}
	return AddSaturating(secs*uint64(time.Second), uint64(t.Nanosecond()))
}

// ToTime converts nanoseconds since the Unix epoch back to a time.Time. It
// reports whether the input saturated against the int64 range that
// time.Time's internal representation can hold.
func ToTime(nanos uint64) (t time.Time, saturated bool) {
	const maxRepresentable = uint64(1<<63 - 1)
	if nanos > maxRepresentable {
		return time.Unix(0, int64(maxRepresentable)), true
	}
	return time.Unix(0, int64(nanos)), false
}

// AddSaturating adds delta nanoseconds to n, saturating at MaxNanos instead
// of wrapping on overflow.
func AddSaturating(n, delta uint64) uint64 {
	sum := n + delta
	if sum < n {
		return MaxNanos
	}
	return sum
}

// IssueTimestamp implements the monotonic-issuance rule: the returned value
// is guaranteed to be at least one nanosecond past maxRecordedNanos (the
// largest mtime_nanos the manifest has ever recorded) and at least the
// current wall-clock time, whichever is larger.
func IssueTimestamp(maxRecordedNanos uint64) uint64 {
	now := FromTime(time.Now())
	floor := AddSaturating(maxRecordedNanos, 1)
	if now > floor {
		return now
	}
	return floor
}

// SetFileMtime sets the modification time of the regular file at path. It
// rejects symlinks and directories the same way the hasher does, since
// setting a timestamp on either is either meaningless or platform-hostile.
func SetFileMtime(path string, nanos uint64) error {
	info, err := os.Lstat(path)
	if err != nil {
		return holderrors.IO(path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return holderrors.FileType(path, "cannot set timestamp on symbolic links")
	}
	if info.IsDir() {
		return holderrors.FileType(path, "cannot set timestamp on directories")
	}

	mtime, _ := ToTime(nanos)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return holderrors.SetTimestamp(path, err)
	}
	return nil
}
