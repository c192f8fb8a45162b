package codegen

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
)

// FunctionInfo describes one function body emitted into a unit.
type FunctionInfo struct {
	ID     int
	Name   string
	Params int
	// Locals is the number of bytecode local slots, parameters included.
	Locals int
	Flags  []string
	// Start and End delimit the body, markers included.
	Start, End int
	// Entries maps continuation program points to the offset of their
	// optimistic instruction.
	Entries map[int]int
}

// Unit is the output of one compile unit.
type Unit struct {
	Name      string
	Chunk     *Chunk
	Functions []FunctionInfo
}

func newUnit(name string) *Unit {
	return &Unit{Name: name, Chunk: NewChunk()}
}

// Function returns the table entry for function id.
func (u *Unit) Function(id int) (FunctionInfo, bool) {
	for _, f := range u.Functions {
		if f.ID == id {
			return f, true
		}
	}
	return FunctionInfo{}, false
}

// FunctionRef is the constant naming a function: its unit and id.
func FunctionRef(unit string, id int) string {
	return fmt.Sprintf("%s#%d", unit, id)
}

// unitVersion is bumped whenever the serialized layout changes.
const unitVersion byte = 0x01

var unitMagic = [4]byte{'O', 'J', 'C', 'B'}

// Serialize converts a Unit to binary format.
// Format:
// - Magic number (4 bytes): "OJCB"
// - Version (1 byte)
// - Gob-encoded Unit data
func (u *Unit) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(unitMagic[:])
	buf.WriteByte(unitVersion)

	enc := gob.NewEncoder(buf)
	if err := enc.Encode(u); err != nil {
		return nil, fmt.Errorf("unit gob encoding failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Deserialize reads a serialized unit.
func Deserialize(data []byte) (*Unit, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("bytecode data too short")
	}
	if !bytes.Equal(data[:4], unitMagic[:]) {
		return nil, fmt.Errorf("invalid magic number, expected OJCB")
	}
	if data[4] != unitVersion {
		return nil, fmt.Errorf("unsupported unit version: %d", data[4])
	}
	var u Unit
	if err := gob.NewDecoder(bytes.NewReader(data[5:])).Decode(&u); err != nil {
		return nil, fmt.Errorf("unit gob decoding failed: %w", err)
	}
	if u.Chunk == nil {
		u.Chunk = NewChunk()
	}
	return &u, nil
}

// DeserializeAll decodes every unit of a generator output.
func DeserializeAll(blobs map[string][]byte) (map[string]*Unit, error) {
	names := make([]string, 0, len(blobs))
	for name := range blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	units := make(map[string]*Unit, len(blobs))
	for _, name := range names {
		u, err := Deserialize(blobs[name])
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", name, err)
		}
		units[name] = u
	}
	return units, nil
}
