package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// This file is THE single place that derives and parses external_id values
// (spec.md §4.1). Two coexisting formats must be accepted by parsers; only
// the v2 format is produced for new rows.
//
//   v2:     <hash16>:pl:<doc_id>
//   legacy: paperless:<doc_id>:<hash16>:<amount>:<date>   (read-only)

const (
	v2Marker     = ":pl:"
	legacyPrefix = "paperless:"
)

// DeriveExternalID computes the v2 external-id, THE dedup key, as a pure
// function of (document id, source hash is not an input to the hash itself —
// only amount/date/source/destination feed the hash — but the doc id is
// appended as a suffix so ids never collide across documents).
//
// hash16 = first 16 lowercase hex digits of SHA-256(amount|date|source|destination)
func DeriveExternalID(documentID int64, amount Money, date, source, destination string) string {
	hash := hash16(amount.String(), date, source, destination)
	return fmt.Sprintf("%s%s%d", hash, v2Marker, documentID)
}

func hash16(amount, date, source, destination string) string {
	payload := strings.Join([]string{amount, date, source, destination}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// ParseExternalID extracts the document id from either the v2 or the legacy
// format. ok is false if neither format matches.
func ParseExternalID(externalID string) (documentID int64, ok bool) {
	if idx := strings.Index(externalID, v2Marker); idx >= 0 {
		suffix := externalID[idx+len(v2Marker):]
		id, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	if strings.HasPrefix(externalID, legacyPrefix) {
		rest := strings.TrimPrefix(externalID, legacyPrefix)
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return 0, false
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// InternalReference builds the PAPERLESS:<doc_id> linkage marker.
func InternalReference(documentID int64) string {
	return fmt.Sprintf("PAPERLESS:%d", documentID)
}

// NotesMarker builds the "Paperless doc_id=<id>" linkage marker.
func NotesMarker(documentID int64) string {
	return fmt.Sprintf("Paperless doc_id=%d", documentID)
}

const (
	internalReferencePrefix = "PAPERLESS:"
	notesMarkerPrefix       = "Paperless doc_id="
)

// ExtractLinkedDocID implements the "Spark-linked" detector (spec.md §4.1):
// a ledger transaction is linked to a document if its external_id,
// internal_reference, or notes carry any of the three markers. The first
// successful parse wins, tried in that order.
func ExtractLinkedDocID(externalID, internalReference, notes string) (int64, bool) {
	if externalID != "" {
		if id, ok := ParseExternalID(externalID); ok {
			return id, true
		}
	}
	if internalReference != "" {
		if strings.HasPrefix(internalReference, internalReferencePrefix) {
			suffix := strings.TrimPrefix(internalReference, internalReferencePrefix)
			if id, err := strconv.ParseInt(suffix, 10, 64); err == nil {
				return id, true
			}
		}
	}
	if notes != "" {
		if idx := strings.Index(notes, notesMarkerPrefix); idx >= 0 {
			rest := notes[idx+len(notesMarkerPrefix):]
			// doc_id runs until the next non-digit (e.g. "; " separator or end).
			end := 0
			for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
				end++
			}
			if end > 0 {
				if id, err := strconv.ParseInt(rest[:end], 10, 64); err == nil {
					return id, true
				}
			}
		}
	}
	return 0, false
}
