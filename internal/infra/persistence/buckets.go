// Package persistence holds helpers shared by the relational catalog
// backends, which store the document as one JSON payload per bucket.
package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// Bucket names used as primary keys of the state table.
const (
	BucketMeta     = "meta"
	BucketServices = "services"
	BucketDevices  = "devices"
	BucketDoctors  = "doctors"
	BucketPatients = "patients"
)

// Buckets lists every bucket in write order.
var Buckets = []string{BucketMeta, BucketServices, BucketDevices, BucketDoctors, BucketPatients}

var bucketKeys = map[string]string{
	BucketServices: "servicesList",
	BucketDevices:  "devicesList",
	BucketDoctors:  "doctorsList",
	BucketPatients: "patientsList",
}

// SplitDocument encodes doc into one payload per bucket.
func SplitDocument(doc domain.Document) (map[string][]byte, error) {
	doc.Normalize()
	out := make(map[string][]byte, len(Buckets))
	encode := func(bucket string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
		return nil
	}
	if err := encode(BucketMeta, doc.Meta()); err != nil {
		return nil, err
	}
	if err := encode(BucketServices, doc.Services); err != nil {
		return nil, err
	}
	if err := encode(BucketDevices, doc.Devices); err != nil {
		return nil, err
	}
	if err := encode(BucketDoctors, doc.Doctors); err != nil {
		return nil, err
	}
	if err := encode(BucketPatients, doc.Patients); err != nil {
		return nil, err
	}
	return out, nil
}

// JoinBuckets reassembles bucket payloads into the raw document layout
// understood by memory.DecodeDocument. It returns nil when no bucket holds
// data. Damaged payloads are passed through untouched so the decoder can
// heal them section by section.
func JoinBuckets(payloads map[string][]byte) ([]byte, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	top := make(map[string]json.RawMessage, len(payloads)+4)
	if meta, ok := payloads[BucketMeta]; ok && len(meta) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(meta, &fields); err == nil {
			for k, v := range fields {
				top[k] = v
			}
		}
	}
	for bucket, key := range bucketKeys {
		payload, ok := payloads[bucket]
		if !ok || len(payload) == 0 {
			continue
		}
		if !json.Valid(payload) {
			payload = []byte("null")
		}
		top[key] = json.RawMessage(payload)
	}
	return json.Marshal(top)
}
