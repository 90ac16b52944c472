// Package queue implements the persistent queue of submissions waiting to
// reach the remote endpoint.
package queue

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Field names as they travel on the wire
const (
	FieldProductName = "product_name"
	FieldProductType = "product_type"
	FieldPrice       = "price"
	FieldTax         = "tax"
)

// FieldNames lists the fields in the order they are sent
var FieldNames = []string{FieldProductName, FieldProductType, FieldPrice, FieldTax}

// Fields maps a field name to the user's input, kept verbatim
type Fields map[string]string

// PendingRecord is one submission awaiting delivery. Once persisted it is
// never modified, only removed.
type PendingRecord struct {
	ID         uuid.UUID
	Fields     Fields
	Attachment []byte
}

// NewRecord assigns a fresh id and copies the caller's data
func NewRecord(fields Fields, attachment []byte) PendingRecord {
	return PendingRecord{
		ID:         uuid.New(),
		Fields:     fields.clone(),
		Attachment: bytes.Clone(attachment),
	}
}

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ErrCorrupt means the stored blob could not be decoded
var ErrCorrupt = errors.New("persisted queue is corrupt")

// storedRecord is the persisted layout of a PendingRecord
type storedRecord struct {
	ID          string  `json:"id"`
	ProductName string  `json:"productName"`
	ProductType string  `json:"productType"`
	Price       string  `json:"price"`
	Tax         string  `json:"tax"`
	ImageBase64 *string `json:"imageBase64"`
}

func encodeRecords(records []PendingRecord) ([]byte, error) {
	stored := make([]storedRecord, len(records))
	for i, r := range records {
		stored[i] = storedRecord{
			ID:          r.ID.String(),
			ProductName: r.Fields[FieldProductName],
			ProductType: r.Fields[FieldProductType],
			Price:       r.Fields[FieldPrice],
			Tax:         r.Fields[FieldTax],
		}
		if r.Attachment != nil {
			image := base64.StdEncoding.EncodeToString(r.Attachment)
			stored[i].ImageBase64 = &image
		}
	}
	return json.Marshal(stored)
}

func decodeRecords(data []byte) ([]PendingRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var stored []storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	records := make([]PendingRecord, 0, len(stored))
	for i, s := range stored {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorrupt, i, err)
		}
		r := PendingRecord{
			ID: id,
			Fields: Fields{
				FieldProductName: s.ProductName,
				FieldProductType: s.ProductType,
				FieldPrice:       s.Price,
				FieldTax:         s.Tax,
			},
		}
		if s.ImageBase64 != nil {
			r.Attachment, err = base64.StdEncoding.DecodeString(*s.ImageBase64)
			if err != nil {
				return nil, fmt.Errorf("%w: record %d image: %v", ErrCorrupt, i, err)
			}
		}
		records = append(records, r)
	}
	return records, nil
}
