// Package fingerprint computes content digests of result sets for change
// detection. Two executions are unchanged iff their fingerprints are
// bit-equal; row reordering is a change. Whether the underlying query
// returns deterministic order is the query author's responsibility.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

// Sum returns a deterministic hex digest of the rows. encoding/json sorts
// map keys, so serialization is canonical for identical row content. A
// marshal failure (non-serializable driver value) is a serialization error
// for the caller to handle as an execution failure.
func Sum(rows []domain.Row) (string, error) {
	if rows == nil {
		rows = []domain.Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
