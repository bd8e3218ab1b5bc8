package sandbox

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is a raw artifact report from an environment's post-execution
// probe. Data is JSON text for "structured" and base64 for "raster"; a probe
// that failed to serialize a figure reports kind "error".
type Payload struct {
	Kind  string `json:"kind"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Extractor turns the raw artifact reports of one execution into at most one
// Artifact. Later valid reports replace earlier ones. Reports that cannot be
// decoded are kept as notices instead of failing the execution.
type Extractor struct {
	artifact Artifact
	notices  []string
}

// Observe records one raw report.
func (e *Extractor) Observe(p Payload) {
	switch p.Kind {
	case "structured":
		e.Structured([]byte(p.Data))
	case "raster":
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(p.Data))
		if err != nil {
			e.Fail(fmt.Errorf("raster artifact is not base64: %w", err))
			return
		}
		e.Raster(raw)
	case "error":
		e.Fail(fmt.Errorf("%s", p.Error))
	default:
		e.Fail(fmt.Errorf("unknown artifact kind %q", p.Kind))
	}
}

// Structured records JSON plot data. It must be a JSON object.
func (e *Extractor) Structured(data []byte) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		e.Fail(fmt.Errorf("structured artifact is not a JSON object: %w", err))
		return
	}
	e.artifact = Structured(data)
}

// Raster records image bytes.
func (e *Extractor) Raster(data []byte) {
	if len(data) == 0 {
		e.Fail(fmt.Errorf("raster artifact is empty"))
		return
	}
	e.artifact = Raster(data)
}

// Fail records an artifact that could not be produced.
func (e *Extractor) Fail(err error) {
	e.notices = append(e.notices, "artifact could not be serialized: "+err.Error())
}

// Artifact returns the last valid artifact observed.
func (e *Extractor) Artifact() Artifact {
	return e.artifact
}

// Notice joins the recorded problems, or returns "".
func (e *Extractor) Notice() string {
	return strings.Join(e.notices, "\n")
}

// Apply attaches the artifact and any notice to r.
func (e *Extractor) Apply(r *Result) {
	r.Artifact = e.artifact
	r.AddNotice(e.Notice())
}
