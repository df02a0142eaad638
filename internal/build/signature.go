// Package build runs the incremental per-class asset pipeline: resolve the
// source set, filter it down to changed files, transform concurrently, write
// atomically and remember what was produced.
package build

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// SignatureProvider computes content signatures (SHA-256 of the bytes) with a
// metadata memo: while a file's modification time and size are unchanged its
// bytes are not read again.
type SignatureProvider struct {
	fs afero.Fs
	// memo is keyed by path; an entry is only valid for the recorded metadata
	memo map[string]signatureEntry
	mu   sync.RWMutex

	hits   int64
	misses int64
}

type signatureEntry struct {
	modTime   time.Time
	size      int64
	signature string
}

// NewSignatureProvider creates a provider reading from fs.
func NewSignatureProvider(fs afero.Fs) *SignatureProvider {
	return &SignatureProvider{
		fs:   fs,
		memo: make(map[string]signatureEntry),
	}
}

// Signature returns the content signature of path.
func (sp *SignatureProvider) Signature(path string) (string, error) {
	stat, err := sp.fs.Stat(path)
	if err != nil {
		return "", err
	}

	sp.mu.RLock()
	entry, ok := sp.memo[path]
	sp.mu.RUnlock()
	if ok && entry.size == stat.Size() && entry.modTime.Equal(stat.ModTime()) {
		sp.mu.Lock()
		sp.hits++
		sp.mu.Unlock()
		return entry.signature, nil
	}

	file, err := sp.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	signature := hex.EncodeToString(h.Sum(nil))

	sp.mu.Lock()
	sp.memo[path] = signatureEntry{modTime: stat.ModTime(), size: stat.Size(), signature: signature}
	sp.misses++
	sp.mu.Unlock()

	return signature, nil
}

// Sum returns the signature of content already in memory.
func Sum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Invalidate drops the memo entry for path.
func (sp *SignatureProvider) Invalidate(path string) {
	sp.mu.Lock()
	delete(sp.memo, path)
	sp.mu.Unlock()
}

// Stats returns memo hits and misses.
func (sp *SignatureProvider) Stats() (hits, misses int64) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.hits, sp.misses
}
