// Package digest computes the content fingerprint holdfast uses to decide
// whether a tracked file has actually changed, independent of its
// modification time. A CI checkout routinely rewrites mtimes on files whose
// bytes never changed, so size-plus-digest is the only signal that survives
// a fresh clone.
package digest

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/holdfast-ci/holdfast/pkg/holderrors"
)

// Digest computes the BLAKE3 digest and size of the regular file at path. It
// rejects symbolic links and directories outright: hashing either would be
// either meaningless or a symlink-following hazard, and every caller in
// holdfast already expects a tracked entry to be a plain file.
func Digest(path string) (size uint64, hexDigest string, err error) {
	info, err := regularFileInfo(path)
	if err != nil {
		return 0, "", err
	}

	if info.Size() == 0 {
		return 0, hexOf(blake3.New()), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, "", holderrors.IO(path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return 0, "", holderrors.IO(path, err)
	}

	return uint64(info.Size()), hexOf(hasher), nil
}

// Size reports the size in bytes of the regular file at path, applying the
// same symlink/directory rejection as Digest.
func Size(path string) (uint64, error) {
	info, err := regularFileInfo(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

// regularFileInfo stats path without following symlinks and rejects
// anything that isn't a plain file.
func regularFileInfo(path string) (os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, holderrors.IO(path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, holderrors.FileType(path, "symbolic links are not supported")
	}
	if info.IsDir() {
		return nil, holderrors.FileType(path, "directories are not supported")
	}
	return info, nil
}

// hexOf renders a hasher's current digest as a lowercase hex string.
func hexOf(hasher *blake3.Hasher) string {
	return hex.EncodeToString(hasher.Sum(nil))
}
