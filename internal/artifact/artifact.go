// Package artifact persists a fitted inference pipeline as one versioned,
// checksummed file.
//
// Layout, big-endian:
//
//	magic    [4]byte  "RSKA"
//	version  uint16
//	length   uint64   payload size in bytes
//	payload  []byte   gob-encoded pipeline state
//	checksum [32]byte SHA-256 of payload
package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/classifier"
	"github.com/sells-group/risk-cli/internal/inference"
)

// FormatVersion is the only payload version this build reads and writes.
const FormatVersion uint16 = 1

// MaxPayload bounds the declared payload length accepted by Decode.
const MaxPayload = 1 << 30

var magic = [4]byte{'R', 'S', 'K', 'A'}

const headerSize = len(magic) + 2 + 8

var (
	// ErrCorrupt marks input that is truncated, fails its checksum, or does
	// not decode.
	ErrCorrupt = eris.New("artifact: corrupt")
	// ErrIncompatible marks a well-formed artifact this build cannot use.
	ErrIncompatible = eris.New("artifact: incompatible")
)

// Info describes a written or read artifact.
type Info struct {
	Path      string    `json:"path,omitempty" yaml:"path,omitempty"`
	Version   uint16    `json:"version" yaml:"version"`
	Kind      string    `json:"kind" yaml:"kind"`
	Columns   []string  `json:"columns" yaml:"columns"`
	Checksum  string    `json:"checksum" yaml:"checksum"`
	Size      int64     `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type payload struct {
	Columns   []string
	Imputer   inference.ConstantImputer
	Scaler    inference.StandardScaler
	Kind      string
	Model     []byte
	CreatedAt time.Time
}

// Encode writes p to w.
func Encode(w io.Writer, p *inference.Pipeline) (Info, error) {
	if p == nil || !p.Fitted() {
		return Info{}, eris.New("artifact: pipeline is not fitted")
	}
	clf := p.Classifier()
	model, err := clf.MarshalBinary()
	if err != nil {
		return Info{}, eris.Wrap(err, "artifact: marshal classifier")
	}

	state := payload{
		Columns:   p.Columns(),
		Imputer:   *p.Imputer(),
		Scaler:    *p.Scaler(),
		Kind:      clf.Kind(),
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(state); err != nil {
		return Info{}, eris.Wrap(err, "artifact: encode payload")
	}
	sum := sha256.Sum256(body.Bytes())

	header := make([]byte, headerSize)
	copy(header, magic[:])
	binary.BigEndian.PutUint16(header[4:], FormatVersion)
	binary.BigEndian.PutUint64(header[6:], uint64(body.Len()))

	for _, chunk := range [][]byte{header, body.Bytes(), sum[:]} {
		if _, err := w.Write(chunk); err != nil {
			return Info{}, eris.Wrap(err, "artifact: write")
		}
	}

	return Info{
		Version:   FormatVersion,
		Kind:      state.Kind,
		Columns:   state.Columns,
		Checksum:  hex.EncodeToString(sum[:]),
		Size:      int64(headerSize + body.Len() + len(sum)),
		CreatedAt: state.CreatedAt,
	}, nil
}

// Decode reads one artifact from r and rebuilds its pipeline.
func Decode(r io.Reader) (*inference.Pipeline, error) {
	p, _, err := decode(r)
	return p, err
}

func decode(r io.Reader) (*inference.Pipeline, Info, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, Info{}, eris.Wrap(ErrCorrupt, "artifact: short header")
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return nil, Info{}, eris.Wrap(ErrCorrupt, "artifact: bad magic")
	}
	version := binary.BigEndian.Uint16(header[4:])
	if version != FormatVersion {
		return nil, Info{}, eris.Wrapf(ErrIncompatible, "artifact: format version %d, want %d", version, FormatVersion)
	}
	length := binary.BigEndian.Uint64(header[6:])
	if length == 0 || length > MaxPayload {
		return nil, Info{}, eris.Wrapf(ErrCorrupt, "artifact: payload length %d", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, Info{}, eris.Wrap(ErrCorrupt, "artifact: truncated payload")
	}
	var sum [sha256.Size]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return nil, Info{}, eris.Wrap(ErrCorrupt, "artifact: truncated checksum")
	}
	if sha256.Sum256(body) != sum {
		return nil, Info{}, eris.Wrap(ErrCorrupt, "artifact: checksum mismatch")
	}

	var state payload
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&state); err != nil {
		return nil, Info{}, eris.Wrapf(ErrCorrupt, "artifact: decode payload: %v", err)
	}

	clf, err := classifier.New(state.Kind)
	if err != nil {
		return nil, Info{}, eris.Wrapf(ErrIncompatible, "artifact: %v", err)
	}
	if err := clf.UnmarshalBinary(state.Model); err != nil {
		return nil, Info{}, eris.Wrapf(ErrCorrupt, "artifact: %v", err)
	}
	imp, sc := state.Imputer, state.Scaler
	p, err := inference.Restore(state.Columns, &imp, &sc, clf)
	if err != nil {
		return nil, Info{}, eris.Wrapf(ErrCorrupt, "artifact: %v", err)
	}

	return p, Info{
		Version:   version,
		Kind:      state.Kind,
		Columns:   state.Columns,
		Checksum:  hex.EncodeToString(sum[:]),
		Size:      int64(headerSize) + int64(length) + sha256.Size,
		CreatedAt: state.CreatedAt,
	}, nil
}

// Save writes p to path. The file appears only once it is complete.
func Save(path string, p *inference.Pipeline) (Info, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, eris.Wrapf(err, "artifact: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return Info{}, eris.Wrap(err, "artifact: create temp file")
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	info, err := Encode(tmp, p)
	if err != nil {
		cleanup()
		return Info{}, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return Info{}, eris.Wrap(err, "artifact: sync")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Info{}, eris.Wrap(err, "artifact: close")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return Info{}, eris.Wrapf(err, "artifact: rename to %s", path)
	}

	info.Path = path
	return info, nil
}

// Load reads the artifact at path.
func Load(path string) (*inference.Pipeline, error) {
	p, _, err := Open(path)
	return p, err
}

// Open reads the artifact at path and also returns its description. Bytes
// after the checksum make the file corrupt.
func Open(path string) (*inference.Pipeline, Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Info{}, eris.Wrapf(err, "artifact: read %s", path)
	}
	r := bytes.NewReader(data)
	p, info, err := decode(r)
	if err != nil {
		return nil, Info{}, err
	}
	if r.Len() != 0 {
		return nil, Info{}, eris.Wrapf(ErrCorrupt, "artifact: %d trailing bytes", r.Len())
	}
	info.Path = path
	return p, info, nil
}
