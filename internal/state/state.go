// Package state persists the output path to signature mapping that decides
// whether a task's outputs are still valid.
package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/aristath/bob/internal/resource"
)

// FileName is the reserved state file inside the build directory.
const FileName = "_bob_state"

const (
	magic   = "BOBS"
	version = 1
)

// ErrCorrupt is returned by Decode for data it cannot trust.
var ErrCorrupt = errors.New("corrupt build state")

// State maps absolute output paths to the signature that produced them.
// Safe for concurrent use.
type State struct {
	mu         sync.RWMutex
	signatures map[string][]byte
}

// New creates an empty state.
func New() *State {
	return &State{signatures: make(map[string][]byte)}
}

// Load reads state from r. A missing resource yields an empty state; corrupt
// content is logged and also yields an empty state.
func Load(r resource.Resource, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := r.Content()
	if err != nil {
		if !errors.Is(err, resource.ErrNotFound) {
			logger.Warn("unable to read build state, starting from scratch", "path", r.Path(), "error", err)
		}
		return New()
	}
	s, err := Decode(data)
	if err != nil {
		logger.Warn("unable to decode build state, starting from scratch", "path", r.Path(), "error", err)
		return New()
	}
	return s
}

// Save writes the full mapping to r.
func (s *State) Save(r resource.Resource) error {
	if err := r.SetContent(s.Encode()); err != nil {
		return fmt.Errorf("saving build state: %w", err)
	}
	return nil
}

// Signature returns the recorded signature for path, or nil.
func (s *State) Signature(path string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signatures[path]
}

// PutSignature records sig for path.
func (s *State) PutSignature(path string, sig []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signatures[path] = append([]byte(nil), sig...)
}

// Clear forgets path so the producing task runs next time.
func (s *State) Clear(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.signatures, path)
}

// Matches reports whether the recorded signature for path equals sig.
func (s *State) Matches(path string, sig []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recorded, ok := s.signatures[path]
	return ok && bytes.Equal(recorded, sig)
}

// Len returns the number of recorded paths.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signatures)
}

// Paths returns every recorded path, sorted.
func (s *State) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.signatures))
	for p := range s.signatures {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Encode serializes the state:
//
//	"BOBS" | uint16 version | uvarint count | (uvarint len, path, uvarint len, sig)* | blake3-256 of the preceding bytes
//
// Entries are sorted by path so equal states encode identically.
func (s *State) Encode() []byte {
	paths := s.Paths()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.Write(binary.BigEndian.AppendUint16(nil, version))
	buf.Write(binary.AppendUvarint(nil, uint64(len(paths))))
	for _, p := range paths {
		sig := s.signatures[p]
		buf.Write(binary.AppendUvarint(nil, uint64(len(p))))
		buf.WriteString(p)
		buf.Write(binary.AppendUvarint(nil, uint64(len(sig))))
		buf.Write(sig)
	}
	sum := blake3.Sum256(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes()
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*State, error) {
	const sumLen = 32
	if len(data) < len(magic)+2+sumLen {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, len(data))
	}
	body, sum := data[:len(data)-sumLen], data[len(data)-sumLen:]
	if want := blake3.Sum256(body); !bytes.Equal(want[:], sum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if string(body[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.BigEndian.Uint16(body[len(magic):]); v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}

	rd := bytes.NewReader(body[len(magic)+2:])
	readChunk := func() ([]byte, error) {
		n, err := binary.ReadUvarint(rd)
		if err != nil {
			return nil, err
		}
		if n > uint64(rd.Len()) {
			return nil, fmt.Errorf("length %d exceeds remaining %d bytes", n, rd.Len())
		}
		chunk := make([]byte, n)
		_, err = io.ReadFull(rd, chunk)
		return chunk, err
	}

	count, err := binary.ReadUvarint(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: reading entry count: %v", ErrCorrupt, err)
	}
	s := New()
	for i := uint64(0); i < count; i++ {
		p, err := readChunk()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d path: %v", ErrCorrupt, i, err)
		}
		sig, err := readChunk()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d signature: %v", ErrCorrupt, i, err)
		}
		s.signatures[string(p)] = sig
	}
	if rd.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, rd.Len())
	}
	return s, nil
}
