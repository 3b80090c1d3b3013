// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package pca

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// A cache of fitted eigen-systems. Keys identify the exposure, the amplifier,
// the fit parameters and the fit inputs, so concurrent workers never write
// the same key
type Store interface {
	Get(key string) (es *EigenSystem, ok bool, err error)
	Put(key string, es *EigenSystem) error
}

// Cache key for amplifier i of an exposure, or for the full frame if i<0. The
// key carries the base name for readability and a hash of the absolute path,
// the fit parameters and the normalized samples, weights and training mask
func Key(fileName string, amp int, p Params, vals, weights []float64, mask []bool) string {
	base := "frame"
	if fileName != "" {
		base = filepath.Base(fileName)
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}

	h := fnv.New64a()
	if fileName != "" {
		if abs, err := filepath.Abs(fileName); err == nil {
			fileName = abs
		}
		io.WriteString(h, fileName)
	}
	fmt.Fprintf(h, "|%d|%d|%g|%d|%g|%g|", p.Components, p.Iterations, p.CSq, p.Seed, p.MaskColumnFrac, p.MinColumnFrac)
	hashFloats(h, vals)
	hashFloats(h, weights)
	buf := make([]byte, len(mask))
	for i, m := range mask {
		if m {
			buf[i] = 1
		}
	}
	h.Write(buf)

	if amp < 0 {
		return fmt.Sprintf("%s_%016x_full", base, h.Sum64())
	}
	return fmt.Sprintf("%s_%016x_amp%d", base, h.Sum64(), amp)
}

func hashFloats(w io.Writer, vs []float64) {
	buf := make([]byte, 8*1024)
	for len(vs) > 0 {
		n := len(vs)
		if n > 1024 {
			n = 1024
		}
		for i, v := range vs[:n] {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
		}
		w.Write(buf[:8*n])
		vs = vs[n:]
	}
}

// In-memory store, safe for concurrent use
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]*EigenSystem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string]*EigenSystem{}}
}

func (s *MemoryStore) Get(key string) (*EigenSystem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	es, ok := s.m[key]
	return es, ok, nil
}

func (s *MemoryStore) Put(key string, es *EigenSystem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = es
	return nil
}

// Number of cached entries
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Store writing one zstd compressed file per key into a directory
type FileStore struct {
	Dir string

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

const fileStoreExt = ".eig.zst"

// Creates a file store in the given directory, creating it if necessary
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating eigen-system cache %s: %w", dir, err)
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &FileStore{Dir: dir, encoder: encoder, decoder: decoder}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Dir, key+fileStoreExt)
}

func (s *FileStore) Get(key string) (*EigenSystem, bool, error) {
	compressed, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("zstd decompress %s failed: %w", key, err)
	}
	es := &EigenSystem{}
	if err := es.UnmarshalBinary(raw); err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return es, true, nil
}

// Writes via a temporary file and rename, so readers never see partial entries
func (s *FileStore) Put(key string, es *EigenSystem) error {
	raw, err := es.MarshalBinary()
	if err != nil {
		return err
	}
	compressed := s.encoder.EncodeAll(raw, nil)

	p := s.path(key)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}
