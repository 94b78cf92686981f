package bbl

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

//UniqueValuesCounts holds the number of distinct values of a categorical feature on the learn part
//and on all data seen so far.
type UniqueValuesCounts struct {
	OnLearnOnly uint32
	OnAll       uint32
}

//Compression is the codec of the perfect hash spill file.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

//ParseCompression converts a textual codec name. An empty string selects zstd.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	}
	return CompressionNone, fmt.Errorf("%w: unknown compression %q", ErrConfiguration, s)
}

var spillMagic = [4]byte{'B', 'B', 'P', 'H'}

const spillVersion = 1

//PerfectHashStore keeps one PerfectHash per categorical feature and can move the whole table
//to a private temporary file to free memory. Accessors reload it transparently.
//
//The store is not synchronized: a single pipeline stage must own it while it is updated,
//evicted or reloaded.
type PerfectHashStore struct {
	counts       []UniqueValuesCounts
	hashes       []*PerfectHash
	hasHashInRAM bool

	allowWriteFiles bool
	tempDir         string
	storageFile     string
	compression     Compression
}

type StoreOption func(*PerfectHashStore)

//WithTempDir sets the directory of the spill file. The default is os.TempDir().
func WithTempDir(dir string) StoreOption {
	return func(s *PerfectHashStore) { s.tempDir = dir }
}

//WithAllowWriteFiles permits FreeRamIfPossible to write the spill file. Default is true.
func WithAllowWriteFiles(allow bool) StoreOption {
	return func(s *PerfectHashStore) { s.allowWriteFiles = allow }
}

//WithCompression selects the spill file codec. Default is zstd.
func WithCompression(c Compression) StoreOption {
	return func(s *PerfectHashStore) { s.compression = c }
}

//NewPerfectHashStore creates an in-memory store for catFeatureCount categorical features.
func NewPerfectHashStore(catFeatureCount uint32, options ...StoreOption) *PerfectHashStore {
	s := &PerfectHashStore{
		counts:          make([]UniqueValuesCounts, catFeatureCount),
		hashes:          make([]*PerfectHash, catFeatureCount),
		hasHashInRAM:    true,
		allowWriteFiles: true,
		tempDir:         os.TempDir(),
		compression:     CompressionZSTD,
	}
	for i := range s.hashes {
		s.hashes[i] = newEmptyPerfectHash()
	}
	for _, option := range options {
		option(s)
	}
	s.storageFile = filepath.Join(s.tempDir, "bbl_perfect_hash_"+uuid.New().String()+".bin")
	return s
}

func (s *PerfectHashStore) FeatureCount() uint32 {
	return uint32(len(s.counts))
}

func (s *PerfectHashStore) HasFeature(catFeatureIdx uint32) bool {
	return int(catFeatureIdx) < len(s.counts)
}

func (s *PerfectHashStore) checkHasFeature(catFeatureIdx uint32) error {
	if !s.HasFeature(catFeatureIdx) {
		return &ConfigurationError{FeatureID: catFeatureIdx, Reason: "unknown categorical feature"}
	}
	return nil
}

func (s *PerfectHashStore) SetAllowWriteFiles(allow bool) {
	s.allowWriteFiles = allow
}

//InRAM reports whether the mappings are currently materialized in memory.
func (s *PerfectHashStore) InRAM() bool {
	return s.hasHashInRAM
}

//StorageFile is the path of the private spill file. It exists only while the store is evicted.
func (s *PerfectHashStore) StorageFile() string {
	return s.storageFile
}

//Update replaces the mapping of a feature. Tables may only grow: once a feature has OnAll > 0,
//a mapping with fewer entries is a ConsistencyError. OnLearnOnly is fixed by the first assignment.
func (s *PerfectHashStore) Update(catFeatureIdx uint32, mapping map[uint32]uint32) error {
	if err := s.checkHasFeature(catFeatureIdx); err != nil {
		return err
	}
	counts := &s.counts[catFeatureIdx]
	if counts.OnAll > 0 && uint32(len(mapping)) < counts.OnAll {
		return consistencyErrorf("perfect hash of categorical feature #%d can not shrink from %d to %d values",
			catFeatureIdx, counts.OnAll, len(mapping))
	}
	if err := s.Load(); err != nil {
		return err
	}
	if counts.OnAll == 0 {
		counts.OnLearnOnly = uint32(len(mapping))
	}
	counts.OnAll = uint32(len(mapping))
	s.hashes[catFeatureIdx] = NewPerfectHash(mapping)
	return nil
}

//Get returns the mapping of a feature, reloading the table from disk when it was evicted.
func (s *PerfectHashStore) Get(catFeatureIdx uint32) (*PerfectHash, error) {
	if err := s.checkHasFeature(catFeatureIdx); err != nil {
		return nil, err
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s.hashes[catFeatureIdx], nil
}

//UniqueValueCounts reports {0, 0} for features with at most one distinct value.
func (s *PerfectHashStore) UniqueValueCounts(catFeatureIdx uint32) (UniqueValuesCounts, error) {
	if err := s.checkHasFeature(catFeatureIdx); err != nil {
		return UniqueValuesCounts{}, err
	}
	counts := s.counts[catFeatureIdx]
	if counts.OnAll > 1 {
		return counts, nil
	}
	return UniqueValuesCounts{}, nil
}

//FreeRamIfPossible writes all mappings to the spill file and drops them from memory.
//It does nothing when writing files is not allowed.
func (s *PerfectHashStore) FreeRamIfPossible() error {
	if !s.allowWriteFiles || !s.hasHashInRAM {
		return nil
	}
	size, err := s.save()
	if err != nil {
		return err
	}
	s.hashes = nil
	s.hasHashInRAM = false
	log.Printf("perfect hash: %d features spilled to %s (%s, %v)",
		len(s.counts), s.storageFile, humanize.Bytes(uint64(size)), s.compression)
	return nil
}

//Load materializes the mappings from the spill file. It is a no-op when they are in memory.
func (s *PerfectHashStore) Load() error {
	if s.hasHashInRAM {
		return nil
	}
	f, err := os.Open(s.storageFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return consistencyErrorf("perfect hash spill file %s is missing", s.storageFile)
		}
		return err
	}
	defer func() { _ = f.Close() }()

	hashes, err := readSpill(f, len(s.counts))
	if err != nil {
		return fmt.Errorf("load perfect hash from %s: %w", s.storageFile, err)
	}
	s.hashes = hashes
	s.hasHashInRAM = true
	if err := os.Remove(s.storageFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

//Equal compares counts and mappings. Both stores are materialized in memory first, which may
//reload other from disk; no logical state changes.
func (s *PerfectHashStore) Equal(other *PerfectHashStore) (bool, error) {
	if len(s.counts) != len(other.counts) {
		return false, nil
	}
	for i := range s.counts {
		if s.counts[i] != other.counts[i] {
			return false, nil
		}
	}
	if err := s.Load(); err != nil {
		return false, err
	}
	if err := other.Load(); err != nil {
		return false, err
	}
	for i := range s.hashes {
		if !s.hashes[i].Equal(other.hashes[i]) {
			return false, nil
		}
	}
	return true, nil
}

//CheckSum hashes counts and mappings of all features.
func (s *PerfectHashStore) CheckSum() (uint32, error) {
	if err := s.Load(); err != nil {
		return 0, err
	}
	d := xxhash.New()
	var buf [8]byte
	for i, counts := range s.counts {
		putUint32Pair(buf[:], counts.OnLearnOnly, counts.OnAll)
		_, _ = d.Write(buf[:])
		s.hashes[i].updateDigest(d)
	}
	return uint32(d.Sum64()), nil
}

//Close removes the spill file and releases the mappings.
func (s *PerfectHashStore) Close() error {
	s.hashes = nil
	s.hasHashInRAM = false
	if err := os.Remove(s.storageFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func putUint32Pair(buf []byte, a, b uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], a)
	binary.LittleEndian.PutUint32(buf[4:8], b)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressingWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZSTD:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	}
	return nil, fmt.Errorf("%w: unknown compression %d", ErrConfiguration, uint8(c))
}

func decompressingReader(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	}
	return nil, nil, consistencyErrorf("unknown spill compression %d", uint8(c))
}

//save writes [magic][version][compression] followed by the compressed body:
//uvarint feature count, then per feature a uvarint entry count and (hash, bin) pairs in hash order.
func (s *PerfectHashStore) save() (int64, error) {
	f, err := os.OpenFile(s.storageFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}

	header := append(spillMagic[:], spillVersion, byte(s.compression))
	if _, err := f.Write(header); err != nil {
		_ = f.Close()
		return 0, err
	}
	cw, err := compressingWriter(f, s.compression)
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	bw := bufio.NewWriter(cw)
	if err := writeHashes(bw, s.hashes); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := cw.Close(); err != nil {
		_ = f.Close()
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	return info.Size(), f.Close()
}

func writeHashes(w *bufio.Writer, hashes []*PerfectHash) error {
	var varint [binary.MaxVarintLen64]byte
	var pair [8]byte

	n := binary.PutUvarint(varint[:], uint64(len(hashes)))
	if _, err := w.Write(varint[:n]); err != nil {
		return err
	}
	for _, h := range hashes {
		n = binary.PutUvarint(varint[:], uint64(h.Len()))
		if _, err := w.Write(varint[:n]); err != nil {
			return err
		}
		var err error
		h.Ascend(func(hash, bin uint32) bool {
			putUint32Pair(pair[:], hash, bin)
			_, err = w.Write(pair[:])
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func readSpill(r io.Reader, expectedFeatures int) ([]*PerfectHash, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	if [4]byte(header[:4]) != spillMagic || header[4] != spillVersion {
		return nil, consistencyErrorf("bad spill file header %x", header[:])
	}
	body, release, err := decompressingReader(r, Compression(header[5]))
	if err != nil {
		return nil, err
	}
	defer release()

	br := bufio.NewReader(body)
	featureCount, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if int(featureCount) != expectedFeatures {
		return nil, consistencyErrorf("spill file holds %d features, expected %d", featureCount, expectedFeatures)
	}
	hashes := make([]*PerfectHash, featureCount)
	var pair [8]byte
	for i := range hashes {
		entries, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, err
		}
		h := newEmptyPerfectHash()
		for j := uint64(0); j < entries; j++ {
			if _, err := io.ReadFull(br, pair[:]); err != nil {
				return nil, err
			}
			h.tree.ReplaceOrInsert(hashEntry{
				Hash: binary.LittleEndian.Uint32(pair[0:4]),
				Bin:  binary.LittleEndian.Uint32(pair[4:8]),
			})
		}
		hashes[i] = h
	}
	return hashes, nil
}
