package manifest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/holdfast-ci/holdfast/pkg/holderrors"
)

// magic identifies a holdfast manifest file, written first so a decoder can
// fail fast on a file that isn't one of ours rather than misreading
// arbitrary bytes as a version number.
var magic = [4]byte{'H', 'L', 'D', 'F'}

// Load reads the manifest at path. A missing file yields a fresh empty
// manifest rather than an error, since the first run in a repository never
// has one yet. Any decode failure — corruption, a format predating the
// magic, or a version newer than CurrentVersion — is reported through err
// rather than handled here; callers that want the "reset and continue"
// behavior should use LoadOrReset.
func Load(path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, holderrors.IO(path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, holderrors.IO(path, err)
	}
	if info.Size() == 0 {
		return New(), nil
	}

	reader := bufio.NewReader(file)

	var gotMagic [4]byte
	if _, err := io.ReadFull(reader, gotMagic[:]); err != nil {
		return nil, holderrors.Deserialization(errors.Wrap(err, "unable to read magic"))
	}
	if gotMagic != magic {
		return nil, holderrors.Deserialization(errors.New("not a holdfast manifest"))
	}

	version, err := readUint32(reader)
	if err != nil {
		return nil, holderrors.Deserialization(errors.Wrap(err, "unable to read version"))
	}
	if version > CurrentVersion {
		return nil, holderrors.Config(fmt.Sprintf(
			"manifest version %d is newer than supported version %d; please update holdfast",
			version, CurrentVersion,
		))
	}

	var m *Manifest
	switch {
	case version >= 4:
		m, err = decodeV4(reader, version)
	case version == 3:
		m, err = decodeV3(reader)
	case version <= 2:
		m, err = decodeV2(reader, version)
	}
	if err != nil {
		return nil, holderrors.Deserialization(err)
	}

	return migrate(m)
}

// LoadOrReset loads the manifest at path, but treats any deserialization
// failure as an incompatible format from a different holdfast version: it
// discards the file and starts fresh rather than refusing to run. A
// version-too-new ConfigError still propagates, since silently discarding a
// newer manifest could lose another tool's tracking state.
func LoadOrReset(path string, warn func(string)) (*Manifest, error) {
	m, err := Load(path)
	if err == nil {
		return m, nil
	}
	if holderrors.Is(err, holderrors.DeserializationError) {
		if warn != nil {
			warn("detected incompatible manifest format from a previous holdfast version; resetting")
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			if warn != nil {
				warn("could not remove old manifest file: " + removeErr.Error())
			}
		}
		return New(), nil
	}
	return nil, err
}

// Save writes m to path atomically: the manifest is encoded into a
// temporary file in the same directory, flushed to stable storage, and then
// renamed into place, so a crash mid-write never leaves a truncated
// manifest behind. The parent directory is created if necessary.
func Save(m *Manifest, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return holderrors.IO(dir, err)
	}

	temp, err := os.CreateTemp(dir, ".holdfast-manifest-*.tmp")
	if err != nil {
		return holderrors.IO(path, err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	writer := bufio.NewWriter(temp)
	if err := encode(writer, m); err != nil {
		temp.Close()
		return holderrors.Serialization(err)
	}
	if err := writer.Flush(); err != nil {
		temp.Close()
		return holderrors.IO(tempPath, err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return holderrors.IO(tempPath, err)
	}
	if err := temp.Close(); err != nil {
		return holderrors.IO(tempPath, err)
	}
	if err := os.Chmod(tempPath, 0o600); err != nil {
		return holderrors.IO(tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return holderrors.IO(path, err)
	}
	return nil
}

// Clean removes the manifest file at path. It is idempotent: a missing
// file is not an error.
func Clean(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return holderrors.IO(path, err)
	}
	return nil
}

// encode always writes the current schema version; migration only ever
// happens in memory on load, so every save upgrades the file on disk.
func encode(w *bufio.Writer, m *Manifest) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := writeUint32(w, CurrentVersion); err != nil {
		return err
	}

	if err := writeUint32(w, uint32(len(m.Files))); err != nil {
		return err
	}
	for _, record := range m.Files {
		if err := writeString(w, record.Path); err != nil {
			return err
		}
		if err := writeUint64(w, record.Size); err != nil {
			return err
		}
		if err := writeString(w, record.Hash); err != nil {
			return err
		}
		if err := writeUint64(w, record.MtimeNanos); err != nil {
			return err
		}
	}

	if err := writeOptionalUint64(w, m.LastGCMtimeNanos); err != nil {
		return err
	}

	return encodeGcMetrics(w, &m.GcMetrics)
}

func encodeGcMetrics(w *bufio.Writer, metrics *GcMetrics) error {
	if err := writeUint32(w, metrics.Runs); err != nil {
		return err
	}
	if err := writeOptionalUint64(w, metrics.SeedInitialSize); err != nil {
		return err
	}
	if err := writeUint64Slice(w, metrics.RecentInitialSizes); err != nil {
		return err
	}
	if err := writeUint64Slice(w, metrics.RecentBytesFreed); err != nil {
		return err
	}
	if err := writeOptionalUint64(w, metrics.LastSuggestedCap); err != nil {
		return err
	}
	if err := writeUint64Slice(w, metrics.RecentFinalSizes); err != nil {
		return err
	}
	if metrics.LastCapTrace == nil {
		return w.WriteByte(0)
	}
	if err := w.WriteByte(1); err != nil {
		return err
	}
	trace := metrics.LastCapTrace
	if err := writeUint64(w, trace.Baseline); err != nil {
		return err
	}
	if err := writeUint64(w, trace.GrowthBudget); err != nil {
		return err
	}
	if err := writeUint64(w, trace.ObservedGrowthPct); err != nil {
		return err
	}
	return writeString(w, trace.ClampReason)
}

// decodeV4 decodes the current schema. Load rejects any version above
// CurrentVersion before dispatching, so this only ever sees version 4.
func decodeV4(r *bufio.Reader, version uint32) (*Manifest, error) {
	m, err := decodeCore(r)
	if err != nil {
		return nil, err
	}
	m.Version = version
	if m.GcMetrics.RecentFinalSizes == nil {
		m.GcMetrics.RecentFinalSizes = []uint64{}
	}
	return m, nil
}

// decodeV3 decodes the schema that predates RecentFinalSizes and
// LastCapTrace in GcMetrics.
func decodeV3(r *bufio.Reader) (*Manifest, error) {
	m, err := decodeCoreUpTo(r, 3)
	if err != nil {
		return nil, err
	}
	m.Version = 3
	return m, nil
}

// decodeV2 decodes the schema that predates GcMetrics entirely.
func decodeV2(r *bufio.Reader, version uint32) (*Manifest, error) {
	m, err := decodeCoreUpTo(r, 2)
	if err != nil {
		return nil, err
	}
	m.Version = version
	return m, nil
}

// decodeCore decodes the full (current) wire shape: files, last GC mtime,
// and the complete GcMetrics record.
func decodeCore(r *bufio.Reader) (*Manifest, error) {
	m, err := decodeFilesAndGCMtime(r)
	if err != nil {
		return nil, err
	}

	runs, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	seed, err := readOptionalUint64(r)
	if err != nil {
		return nil, err
	}
	initialSizes, err := readUint64Slice(r)
	if err != nil {
		return nil, err
	}
	bytesFreed, err := readUint64Slice(r)
	if err != nil {
		return nil, err
	}
	lastCap, err := readOptionalUint64(r)
	if err != nil {
		return nil, err
	}
	finalSizes, err := readUint64Slice(r)
	if err != nil {
		return nil, err
	}
	hasTrace, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var trace *CapTrace
	if hasTrace == 1 {
		trace = &CapTrace{}
		if trace.Baseline, err = readUint64(r); err != nil {
			return nil, err
		}
		if trace.GrowthBudget, err = readUint64(r); err != nil {
			return nil, err
		}
		if trace.ObservedGrowthPct, err = readUint64(r); err != nil {
			return nil, err
		}
		if trace.ClampReason, err = readString(r); err != nil {
			return nil, err
		}
	}

	m.GcMetrics = GcMetrics{
		Runs:               runs,
		SeedInitialSize:    seed,
		RecentInitialSizes: initialSizes,
		RecentBytesFreed:   bytesFreed,
		LastSuggestedCap:   lastCap,
		RecentFinalSizes:   finalSizes,
		LastCapTrace:       trace,
	}
	return m, nil
}

// decodeCoreUpTo decodes only the GcMetrics fields that existed as of the
// given legacy schema version, leaving the rest at their zero values so
// migrate can fill them in the same way the original schema upgrade did.
func decodeCoreUpTo(r *bufio.Reader, legacyVersion uint32) (*Manifest, error) {
	m, err := decodeFilesAndGCMtime(r)
	if err != nil {
		return nil, err
	}
	if legacyVersion < 3 {
		return m, nil
	}

	runs, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	seed, err := readOptionalUint64(r)
	if err != nil {
		return nil, err
	}
	initialSizes, err := readUint64Slice(r)
	if err != nil {
		return nil, err
	}
	bytesFreed, err := readUint64Slice(r)
	if err != nil {
		return nil, err
	}
	lastCap, err := readOptionalUint64(r)
	if err != nil {
		return nil, err
	}

	m.GcMetrics = GcMetrics{
		Runs:               runs,
		SeedInitialSize:    seed,
		RecentInitialSizes: initialSizes,
		RecentBytesFreed:   bytesFreed,
		LastSuggestedCap:   lastCap,
	}
	return m, nil
}

func decodeFilesAndGCMtime(r *bufio.Reader) (*Manifest, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	files := make(map[string]FileRecord, count)
	for i := uint32(0); i < count; i++ {
		path, err := readString(r)
		if err != nil {
			return nil, err
		}
		size, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		hash, err := readString(r)
		if err != nil {
			return nil, err
		}
		mtime, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		files[path] = FileRecord{Path: path, Size: size, Hash: hash, MtimeNanos: mtime}
	}

	lastGC, err := readOptionalUint64(r)
	if err != nil {
		return nil, err
	}

	return &Manifest{Files: files, LastGCMtimeNanos: lastGC}, nil
}

// migrate upgrades m in place to CurrentVersion, filling in each
// intermediate version's new fields with the same defaults the original
// schema upgrade used.
func migrate(m *Manifest) (*Manifest, error) {
	if m.Version < 2 {
		m.Version = 2
	}
	if m.Version == 2 {
		m.GcMetrics = GcMetrics{}
		m.Version = 3
	}
	if m.Version == 3 {
		if m.GcMetrics.RecentFinalSizes == nil {
			m.GcMetrics.RecentFinalSizes = []uint64{}
		}
		m.GcMetrics.LastCapTrace = nil
		m.Version = 4
	}
	return m, nil
}

// --- primitive framing helpers, modeled on the length-prefix idiom of a
// buffered varint-delimited byte stream. ---

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeOptionalUint64(w io.Writer, v *uint64) error {
	if v == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	return writeUint64(w, *v)
}

func readOptionalUint64(r *bufio.Reader) (*uint64, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	length, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeUint64Slice(w io.Writer, values []uint64) error {
	if err := writeUint32(w, uint32(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := writeUint64(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readUint64Slice(r *bufio.Reader) ([]uint64, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	values := make([]uint64, count)
	for i := range values {
		if values[i], err = readUint64(r); err != nil {
			return nil, err
		}
	}
	return values, nil
}
