package hasher

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"sync"

	"github.com/crishoj/odf-fetch/logger"

	"github.com/cespare/xxhash/v2"
	"github.com/glaslos/tlsh"
	"lukechampine.com/blake3"
)

// FuzzyAlgorithm is the similarity digest. Unlike the others it cannot be
// computed for files shorter than 50 bytes.
const FuzzyAlgorithm = "tlsh"

const checksumBufferSize = 128 * 1024

var checksumBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, checksumBufferSize)
		return &buf
	},
}

func newHash(algo string) (hash.Hash, bool) {
	switch algo {
	case "xxhash":
		return xxhash.New(), true
	case "sha256":
		return sha256.New(), true
	case "blake3":
		return blake3.New(32, nil), true
	default:
		return nil, false
	}
}

// ComputeChecksums hashes the file at path once per algorithm in a single
// read pass. Unsupported algorithms are logged and skipped.
func ComputeChecksums(path string, algorithms []string) map[string]string {
	sums := make(map[string]string, len(algorithms))
	if len(algorithms) == 0 {
		return sums
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Warnf("Failed to open file for checksums %s: %v", path, err)
		return sums
	}
	defer file.Close()

	type hasherEntry struct {
		name string
		h    hash.Hash
	}
	hashers := make([]hasherEntry, 0, len(algorithms))
	seen := make(map[string]struct{}, len(algorithms))
	fuzzy := false
	for _, algo := range algorithms {
		if _, ok := seen[algo]; ok {
			continue
		}
		if algo == FuzzyAlgorithm {
			seen[algo] = struct{}{}
			fuzzy = true
			continue
		}
		h, ok := newHash(algo)
		if !ok {
			logger.Warnf("Unsupported checksum algorithm: %s", algo)
			continue
		}
		seen[algo] = struct{}{}
		hashers = append(hashers, hasherEntry{name: algo, h: h})
	}
	if fuzzy {
		if sum, err := fuzzyHash(file); err != nil {
			logger.Debugf("No %s digest for %s: %v", FuzzyAlgorithm, path, err)
		} else {
			sums[FuzzyAlgorithm] = sum
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			logger.Warnf("Failed to rewind %s: %v", path, err)
			return sums
		}
	}
	if len(hashers) == 0 {
		return sums
	}

	writers := make([]io.Writer, len(hashers))
	for i := range hashers {
		writers[i] = hashers[i].h
	}
	bufferPtr := checksumBufferPool.Get().(*[]byte)
	defer checksumBufferPool.Put(bufferPtr)
	if _, err := io.CopyBuffer(io.MultiWriter(writers...), file, *bufferPtr); err != nil {
		logger.Warnf("Failed to compute checksums for %s: %v", path, err)
		return sums
	}

	for i := range hashers {
		sums[hashers[i].name] = hex.EncodeToString(hashers[i].h.Sum(nil))
	}
	return sums
}

func fuzzyHash(r io.Reader) (string, error) {
	h, err := tlsh.HashReader(bufio.NewReader(r))
	if err != nil {
		return "", err
	}
	return h.String(), nil
}
