package iforest

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/hed1ad/anomalyscore/pkg/fields"
	"github.com/hed1ad/anomalyscore/pkg/metrics"
)

// Serialized scorers start with a four byte magic and a big endian format
// version, followed by the gob encoded state.
const (
	formatMagic   = "ADSC"
	formatVersion = uint16(1)
	headerSize    = len(formatMagic) + 2
)

// state is the version 1 payload.
type state struct {
	ID                  string
	SampleSize          int
	MeanDepth           float64
	NodesMeanDepth      float64
	NormalizationFactor float64
	ExplicitFactor      bool
	InputFields         []string
	IDFields            []string
	Schema              map[string]*fields.Field
	ScoringFields       []string
	MissingTokens       []string
	Forest              *forest
	TopAnomalies        []topAnomaly
}

// Save serializes the reconstructed scorer so that Load can restore it
// without the source document.
func (f *IsolationForest) Save() ([]byte, error) {
	if f.forest == nil && !f.degenerate() {
		return nil, ErrForestUnavailable
	}
	st := state{
		ID:                  f.id,
		SampleSize:          f.sampleSize,
		MeanDepth:           f.meanDepth,
		NodesMeanDepth:      f.nodesMeanDepth,
		NormalizationFactor: f.normalizationFactor,
		ExplicitFactor:      f.explicitFactor,
		InputFields:         f.inputFields,
		IDFields:            f.idFields,
		Schema:              f.fields.Schema(),
		ScoringFields:       f.fields.InputFields(),
		MissingTokens:       f.fields.MissingTokens(),
		Forest:              f.forest,
		TopAnomalies:        f.topAnomalies,
	}

	var buf bytes.Buffer
	buf.WriteString(formatMagic)
	if err := binary.Write(&buf, binary.BigEndian, formatVersion); err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(&buf).Encode(&st); err != nil {
		return nil, fmt.Errorf("encoding scorer state: %w", err)
	}
	return buf.Bytes(), nil
}

// Load restores a scorer serialized by Save.
func Load(data []byte, opts ...Option) (*IsolationForest, error) {
	start := time.Now()
	if len(data) < headerSize || string(data[:len(formatMagic)]) != formatMagic {
		return nil, fmt.Errorf("%w: missing header", ErrUnsupportedFormat)
	}
	version := binary.BigEndian.Uint16(data[len(formatMagic):headerSize])
	if version != formatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, version)
	}

	var st state
	if err := gob.NewDecoder(bytes.NewReader(data[headerSize:])).Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	f := newWithOptions(opts)
	f.id = st.ID
	f.sampleSize = st.SampleSize
	f.meanDepth = st.MeanDepth
	f.nodesMeanDepth = st.NodesMeanDepth
	f.normalizationFactor = st.NormalizationFactor
	f.explicitFactor = st.ExplicitFactor
	f.inputFields = st.InputFields
	f.idFields = st.IDFields
	f.topAnomalies = st.TopAnomalies
	f.fields = fields.New(st.Schema, st.ScoringFields, st.MissingTokens)

	if f.sampleSize < 1 {
		return nil, fmt.Errorf("%w: sample_size %d", ErrCorruptState, f.sampleSize)
	}
	if st.Forest != nil {
		if err := st.Forest.validate(); err != nil {
			return nil, err
		}
		if err := st.Forest.prepare(f.fields); err != nil {
			return nil, err
		}
		f.forest = st.Forest
	} else if !f.degenerate() {
		return nil, ErrForestUnavailable
	}

	f.metrics.ObserveBuild(metrics.SourceCache, time.Since(start))
	return f, nil
}
