package mir

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so the same program always encodes to
// the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("mir: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serializes a Program to CBOR bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// UnmarshalProgram deserializes a Program from CBOR bytes.
func UnmarshalProgram(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("mir: unmarshal program: %w", err)
	}
	return &p, nil
}

// ReadProgramFile loads a CBOR-encoded program (conventionally *.mir.cbor).
func ReadProgramFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mir: %w", err)
	}
	return UnmarshalProgram(data)
}

// WriteProgramFile writes p to path in CBOR.
func WriteProgramFile(path string, p *Program) error {
	data, err := MarshalProgram(p)
	if err != nil {
		return fmt.Errorf("mir: marshal program: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
