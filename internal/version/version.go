// Package version implements batch/version publication: the chronologically
// named batch-info files that mark a write session's commit as visible to
// readers, and the CombineTakingLatestVersion shadowing rule.
package version

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// BatchInfo is the content of a <collectionID>-<versionID>.ix publication
// file.
type BatchInfo struct {
	VersionID       int64  `json:"version_id"`
	DocCount        int64  `json:"doc_count"`
	Compression     string `json:"compression"`
	PrimaryKeyField string `json:"primary_key_field"`
	PostingsOffset  int64  `json:"postings_offset"`
}

// Publish writes the batch-info file for info last — its presence is the
// publication signal a reader uses to include the batch. The caller must
// have already durably written value/doc/postings/tree data for this
// version; Publish does not order anything upstream of itself. The
// filename is scoped by collectionID since many collections share one
// dataDir.
func Publish(dataDir string, collectionID uint64, info BatchInfo) error {
	path := filepath.Join(dataDir, fmt.Sprintf("%d-%d.ix", collectionID, info.VersionID))
	tmp := path + ".tmp"
	buf, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: encoding batch-info: %v", tderrors.ErrIO, err)
	}
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("%w: writing batch-info: %v", tderrors.ErrIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: publishing batch-info: %v", tderrors.ErrIO, err)
	}
	return nil
}

// List enumerates collectionID's published batches in dataDir in
// chronological (ascending version-id) order. A batch whose .ix file is
// absent (crash mid-commit) is simply not present and is silently skipped
// — that's the only visibility test a reader performs. Filenames are
// scoped by collectionID since many collections share one dataDir.
func List(dataDir string, collectionID uint64) ([]BatchInfo, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %v", tderrors.ErrIO, dataDir, err)
	}
	prefix := fmt.Sprintf("%d-", collectionID)
	var batches []BatchInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".ix") || strings.HasSuffix(name, ".ix.tmp") {
			continue
		}
		versionPart := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".ix")
		if _, err := strconv.ParseInt(versionPart, 10, 64); err != nil {
			continue // not a batch-info file (e.g. a per-field .tri)
		}
		buf, err := os.ReadFile(filepath.Join(dataDir, name))
		if err != nil {
			continue // raced with a concurrent delete/rename; treat as absent
		}
		var info BatchInfo
		if err := json.Unmarshal(buf, &info); err != nil {
			continue
		}
		batches = append(batches, info)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].VersionID < batches[j].VersionID })
	return batches, nil
}

// Newest returns collectionID's batches in newest-first order, for the
// evaluator's per-batch-version read order (§4.9).
func Newest(dataDir string, collectionID uint64) ([]BatchInfo, error) {
	batches, err := List(dataDir, collectionID)
	if err != nil {
		return nil, err
	}
	out := make([]BatchInfo, len(batches))
	for i, b := range batches {
		out[len(batches)-1-i] = b
	}
	return out, nil
}

// Record is a primary-key-bearing row tagged with the version it came from,
// used by CombineTakingLatestVersion.
type Record struct {
	PrimaryKey string
	VersionID  int64
	DocID      int64
	Score      float32
}

// CombineTakingLatestVersion folds rows from possibly-many batches into one
// per primary key, keeping the highest VersionID on collision.
func CombineTakingLatestVersion(rows []Record) []Record {
	best := make(map[string]Record)
	for _, r := range rows {
		cur, ok := best[r.PrimaryKey]
		if !ok || r.VersionID > cur.VersionID {
			best[r.PrimaryKey] = r
		}
	}
	out := make([]Record, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	return out
}
