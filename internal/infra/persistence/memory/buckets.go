package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by durable backends that store the snapshot as one JSON
// payload per collection.
const (
	BucketCemeteries  = "cemeteries"
	BucketGraves      = "graves"
	BucketBurials     = "burials"
	BucketCovers      = "covers"
	BucketChangeLogs  = "change_logs"
	BucketAuditTrails = "audit_trails"
)

// Buckets lists every bucket in persistence order.
func Buckets() []string {
	return []string{BucketCemeteries, BucketGraves, BucketBurials, BucketCovers, BucketChangeLogs, BucketAuditTrails}
}

func (s *Snapshot) target(bucket string) (any, bool) {
	switch bucket {
	case BucketCemeteries:
		return &s.Cemeteries, true
	case BucketGraves:
		return &s.Graves, true
	case BucketBurials:
		return &s.Burials, true
	case BucketCovers:
		return &s.Covers, true
	case BucketChangeLogs:
		return &s.ChangeLogs, true
	case BucketAuditTrails:
		return &s.AuditTrails, true
	}
	return nil, false
}

// EncodeBucket marshals one collection of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target, ok := s.target(bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals payload into the matching collection. Unknown
// buckets and empty payloads are ignored.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.target(bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
