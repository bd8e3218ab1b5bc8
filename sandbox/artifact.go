package sandbox

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ArtifactKind tags the visual output of an execution.
type ArtifactKind int

const (
	ArtifactNone ArtifactKind = iota
	// ArtifactStructured holds a JSON plot description (Plotly layout).
	ArtifactStructured
	// ArtifactRaster holds encoded image bytes (PNG).
	ArtifactRaster
)

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactStructured:
		return "structured"
	case ArtifactRaster:
		return "raster"
	default:
		return "none"
	}
}

// Artifact is at most one plot produced by an execution. The zero value is
// ArtifactNone.
type Artifact struct {
	Kind ArtifactKind
	Data []byte
}

// Structured creates a structured artifact from JSON bytes.
func Structured(data []byte) Artifact {
	return Artifact{Kind: ArtifactStructured, Data: data}
}

// Raster creates a raster artifact from image bytes.
func Raster(data []byte) Artifact {
	return Artifact{Kind: ArtifactRaster, Data: data}
}

// Present reports whether the artifact carries a plot.
func (a Artifact) Present() bool {
	return a.Kind != ArtifactNone
}

// Base64 returns the raster bytes in standard base64.
func (a Artifact) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// Struct decodes a structured artifact into a protobuf Struct. It fails for
// other kinds and for JSON that is not an object.
func (a Artifact) Struct() (*structpb.Struct, error) {
	if a.Kind != ArtifactStructured {
		return nil, fmt.Errorf("artifact is %s, not structured", a.Kind)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(a.Data, s); err != nil {
		return nil, fmt.Errorf("decode structured artifact: %w", err)
	}
	return s, nil
}

type wireArtifact struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes structured data inline and raster data as a base64
// string. ArtifactNone encodes as null.
func (a Artifact) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ArtifactStructured:
		return json.Marshal(wireArtifact{Kind: a.Kind.String(), Data: json.RawMessage(a.Data)})
	case ArtifactRaster:
		encoded, err := json.Marshal(a.Base64())
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireArtifact{Kind: a.Kind.String(), Data: encoded})
	default:
		return []byte("null"), nil
	}
}

func (a *Artifact) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = Artifact{}
		return nil
	}

	var wire wireArtifact
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch wire.Kind {
	case "structured":
		*a = Structured([]byte(wire.Data))
	case "raster":
		var encoded string
		if err := json.Unmarshal(wire.Data, &encoded); err != nil {
			return fmt.Errorf("raster data: %w", err)
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("raster data: %w", err)
		}
		*a = Raster(raw)
	case "", "none":
		*a = Artifact{}
	default:
		return fmt.Errorf("unknown artifact kind %q", wire.Kind)
	}
	return nil
}
