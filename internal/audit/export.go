package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Export is a serialized ledger snapshot. Signature is present only when a
// key was supplied.
type Export struct {
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature,omitempty"`
}

// ExportSigned serializes every query record to a canonical byte form and,
// when key is non-empty, computes an HMAC-SHA256 signature over those exact
// bytes. Canonical form: a JSON array of records in ascending id order with
// fixed struct field order — any re-serialization of the same rows with the
// same key reproduces the identical signature, which is the integrity
// guarantee auditors verify against.
func (l *Ledger) ExportSigned(ctx context.Context, key []byte) (Export, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, ts, user, idx, hits, duration_ms, query_json FROM queries ORDER BY id ASC`,
	)
	if err != nil {
		return Export{}, fmt.Errorf("export queries: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AuditRecord, 0)
	for rows.Next() {
		var r domain.AuditRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.User, &r.Index, &r.Hits, &r.DurationMS, &r.QueryJSON); err != nil {
			return Export{}, fmt.Errorf("scan export record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return Export{}, fmt.Errorf("iterate export records: %w", err)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return Export{}, fmt.Errorf("encode export: %w", err)
	}

	out := Export{Data: data}
	if len(key) > 0 {
		out.Signature = Sign(data, key)
	}
	return out, nil
}

// Sign computes the hex HMAC-SHA256 of data under key.
func Sign(data, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches data under key.
func Verify(data, key []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), want)
}
