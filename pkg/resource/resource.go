// Package resource models the anomaly detector resource documents served by
// the remote platform and the ways of obtaining them.
package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/hed1ad/anomalyscore/pkg/fields"
)

// StatusFinished is the status code of a resource whose training completed.
const StatusFinished = 5

var idPattern = regexp.MustCompile(`^anomaly/[a-f0-9]{24}$`)

// ErrInvalidID is returned for strings that are not anomaly detector ids.
var ErrInvalidID = errors.New("invalid anomaly detector id")

// ParseID validates an anomaly detector id of the form anomaly/<24 hex>.
func ParseID(id string) (string, error) {
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return id, nil
}

// IsID reports whether s is a well formed anomaly detector id.
func IsID(s string) bool {
	return idPattern.MatchString(s)
}

// Document is a full resource document as returned by the platform.
type Document struct {
	Resource string  `json:"resource"`
	Object   Anomaly `json:"object"`
}

// Status is the training status of a resource.
type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// Anomaly is the object section of an anomaly detector document.
type Anomaly struct {
	Resource    string   `json:"resource,omitempty"`
	Name        string   `json:"name,omitempty"`
	Status      Status   `json:"status"`
	SampleSize  *int     `json:"sample_size,omitempty"`
	InputFields []string `json:"input_fields,omitempty"`
	IDFields    []string `json:"id_fields,omitempty"`
	Model       *Model   `json:"model,omitempty"`
}

// Model holds the trained forest and its statistics.
type Model struct {
	Fields              map[string]*fields.Field `json:"fields,omitempty"`
	MissingTokens       []string                 `json:"missing_tokens,omitempty"`
	MeanDepth           *float64                 `json:"mean_depth,omitempty"`
	NormalizationFactor *float64                 `json:"normalization_factor,omitempty"`
	NodesMeanDepth      *float64                 `json:"nodes_mean_depth,omitempty"`
	Trees               []Tree                   `json:"trees,omitempty"`
	TopAnomalies        []TopAnomaly             `json:"top_anomalies,omitempty"`
}

// Tree wraps the root node of one isolation tree.
type Tree struct {
	Root *Node `json:"root"`
}

// TopAnomaly is one of the most anomalous rows of the training dataset.
type TopAnomaly struct {
	Row   []any   `json:"row"`
	Score float64 `json:"score"`
}

// Node is a node of an isolation tree in its source, recursive form.
type Node struct {
	Weight     *float64   `json:"weight,omitempty"`
	Predicates Predicates `json:"predicates"`
	Children   []*Node    `json:"children,omitempty"`
}

// NodeWeight returns the node weight, 1 when absent.
func (n *Node) NodeWeight() float64 {
	if n.Weight == nil {
		return 1
	}
	return *n.Weight
}

// Predicate is a guard condition on a single field.
type Predicate struct {
	Op    string  `json:"op"`
	Field string  `json:"field"`
	Value any     `json:"value"`
	Term  *string `json:"term,omitempty"`
}

// Predicates is either the always true sentinel or a list of predicates.
type Predicates struct {
	Always bool
	List   []Predicate
}

// UnmarshalJSON accepts true, [true] or a list of predicate objects.
func (p *Predicates) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("true")) {
		*p = Predicates{Always: true}
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*p = Predicates{}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding predicates: %w", err)
	}
	if len(raw) == 1 && bytes.Equal(bytes.TrimSpace(raw[0]), []byte("true")) {
		*p = Predicates{Always: true}
		return nil
	}
	list := make([]Predicate, 0, len(raw))
	for _, r := range raw {
		var pred Predicate
		if err := json.Unmarshal(r, &pred); err != nil {
			return fmt.Errorf("decoding predicate %s: %w", r, err)
		}
		list = append(list, pred)
	}
	*p = Predicates{List: list}
	return nil
}

// MarshalJSON writes the sentinel as true.
func (p Predicates) MarshalJSON() ([]byte, error) {
	if p.Always {
		return []byte("true"), nil
	}
	if p.List == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.List)
}

// Parse decodes a resource document. Bare object documents, without the
// resource/object envelope, are accepted too.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading resource document: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes decodes a resource document held in memory.
func ParseBytes(data []byte) (*Document, error) {
	var envelope struct {
		Resource string          `json:"resource"`
		Object   json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding resource document: %w", err)
	}
	body := []byte(envelope.Object)
	if len(body) == 0 {
		body = data
	}
	doc := &Document{Resource: envelope.Resource}
	if err := json.Unmarshal(body, &doc.Object); err != nil {
		return nil, fmt.Errorf("decoding anomaly detector: %w", err)
	}
	if doc.Resource == "" {
		doc.Resource = doc.Object.Resource
	}
	return doc, nil
}

// ReadFile decodes the resource document stored at path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening resource file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
