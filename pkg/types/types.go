package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ManifestFileName is the fixed name of the provenance record in an output directory
const ManifestFileName = "model.json"

// CreatedLayout renders manifest timestamps as ISO-8601 UTC with microseconds and a trailing Z
const CreatedLayout = "2006-01-02T15:04:05.000000Z"

// Precision tags the numeric precision of an artifact
type Precision string

const (
	PrecisionFull Precision = "full"
	PrecisionFP16 Precision = "fp16"
	PrecisionInt8 Precision = "int8"
	PrecisionNone Precision = "none"
)

// ParsePrecision validates a requested precision mode
func ParsePrecision(s string) (Precision, error) {
	switch p := Precision(strings.ToLower(strings.TrimSpace(s))); p {
	case PrecisionFP16, PrecisionInt8, PrecisionNone:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q (want fp16, int8 or none)", ErrUnknownPrecision, s)
	}
}

// Artifact is an immutable model graph file at one precision level
type Artifact struct {
	Path      string    `json:"path"`
	Precision Precision `json:"precision"`
}

// Name returns the base file name of the artifact
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Derive returns the artifact path for a reduced variant: same directory,
// stem suffixed with the precision tag.
func (a Artifact) Derive(p Precision) Artifact {
	dir := filepath.Dir(a.Path)
	ext := filepath.Ext(a.Path)
	stem := strings.TrimSuffix(filepath.Base(a.Path), ext)
	return Artifact{
		Path:      filepath.Join(dir, stem+"_"+string(p)+ext),
		Precision: p,
	}
}

// PrecisionFromName infers the precision tag from a file name suffix.
// Files without a known suffix are reported as full precision.
func PrecisionFromName(name string) Precision {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	for _, p := range []Precision{PrecisionFP16, PrecisionInt8} {
		if strings.HasSuffix(stem, "_"+string(p)) {
			return p
		}
	}
	return PrecisionFull
}

// BenchmarkMetrics summarizes one latency sample set
type BenchmarkMetrics struct {
	MedianMs float64 `json:"median_ms"`
	P95Ms    float64 `json:"p95_ms"`
	Samples  int     `json:"samples"`
}

// Manifest is the persisted provenance record for a final artifact
type Manifest struct {
	File    string            `json:"file"`
	SHA256  string            `json:"sha256"`
	Created string            `json:"created"`
	Metrics *BenchmarkMetrics `json:"metrics"`

	// Signature over the manifest with this field cleared
	Signature string `json:"signature,omitempty"`
}

// manifestJSON mirrors Manifest with metrics as a raw object so that
// absent metrics encode as {} instead of null.
type manifestJSON struct {
	File      string          `json:"file"`
	SHA256    string          `json:"sha256"`
	Created   string          `json:"created"`
	Metrics   json.RawMessage `json:"metrics"`
	Signature string          `json:"signature,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (m Manifest) MarshalJSON() ([]byte, error) {
	metrics := json.RawMessage("{}")
	if m.Metrics != nil {
		data, err := json.Marshal(m.Metrics)
		if err != nil {
			return nil, err
		}
		metrics = data
	}

	return json.Marshal(manifestJSON{
		File:      m.File,
		SHA256:    m.SHA256,
		Created:   m.Created,
		Metrics:   metrics,
		Signature: m.Signature,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw manifestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.File = raw.File
	m.SHA256 = raw.SHA256
	m.Created = raw.Created
	m.Signature = raw.Signature
	m.Metrics = nil

	trimmed := strings.TrimSpace(string(raw.Metrics))
	if trimmed == "" || trimmed == "{}" || trimmed == "null" {
		return nil
	}

	var metrics BenchmarkMetrics
	if err := json.Unmarshal(raw.Metrics, &metrics); err != nil {
		return fmt.Errorf("invalid metrics: %w", err)
	}
	m.Metrics = &metrics
	return nil
}

// CreatedAt parses the Created timestamp
func (m *Manifest) CreatedAt() (time.Time, error) {
	return time.Parse(CreatedLayout, m.Created)
}

// ComputeHash returns the SHA256 hash of the manifest (excluding signature)
func (m *Manifest) ComputeHash() (string, error) {
	manifestCopy := *m
	manifestCopy.Signature = ""

	data, err := json.Marshal(manifestCopy)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// FormatCreated renders t in the manifest timestamp layout
func FormatCreated(t time.Time) string {
	return t.UTC().Format(CreatedLayout)
}
