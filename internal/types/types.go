// Package types provides the primitive vocabulary shared across MicroProto
// components: wire type ids, property levels, protocol limits and sentinel
// errors.
//
// Zero-dependency design: types.go, path.go and errors.go use only the standard
// library so that the codec packages stay small. ID utilities in ids.go import
// uuid and are only needed by the network surfaces.
package types

import "fmt"

// TypeID is the 1-byte tag identifying a wire type.
// Values are part of the wire format and never change.
type TypeID uint8

const (
	TypeInvalid TypeID = 0x00
	TypeBool    TypeID = 0x01
	TypeInt8    TypeID = 0x02
	TypeUint8   TypeID = 0x03
	TypeInt32   TypeID = 0x04
	TypeFloat32 TypeID = 0x05
	TypeInt16   TypeID = 0x06
	TypeUint16  TypeID = 0x07
	TypeUint32  TypeID = 0x08
	TypeInt64   TypeID = 0x09
	TypeUint64  TypeID = 0x0A
	TypeFloat64 TypeID = 0x0B

	TypeString TypeID = 0x10 // varint length + UTF-8 bytes
	TypeBytes  TypeID = 0x11 // varint length + raw bytes

	TypeArray    TypeID = 0x20 // fixed count, no length prefix
	TypeList     TypeID = 0x21 // varint count + elements
	TypeObject   TypeID = 0x22 // fields in declaration order
	TypeVariant  TypeID = 0x23 // 1-byte tag + alternative
	TypeResource TypeID = 0x24 // versioned out-of-line blobs
)

// typeInfo is one row of the static id/name/size table.
type typeInfo struct {
	name string
	size int // fixed wire size in bytes, 0 when variable or composite
}

var typeTable = map[TypeID]typeInfo{
	TypeBool:     {"bool", 1},
	TypeInt8:     {"int8", 1},
	TypeUint8:    {"uint8", 1},
	TypeInt16:    {"int16", 2},
	TypeUint16:   {"uint16", 2},
	TypeInt32:    {"int32", 4},
	TypeUint32:   {"uint32", 4},
	TypeInt64:    {"int64", 8},
	TypeUint64:   {"uint64", 8},
	TypeFloat32:  {"float32", 4},
	TypeFloat64:  {"float64", 8},
	TypeString:   {"string", 0},
	TypeBytes:    {"bytes", 0},
	TypeArray:    {"array", 0},
	TypeList:     {"list", 0},
	TypeObject:   {"object", 0},
	TypeVariant:  {"variant", 0},
	TypeResource: {"resource", 0},
}

// String returns the canonical lower-case name of the type id.
func (t TypeID) String() string {
	if info, ok := typeTable[t]; ok {
		return info.name
	}
	return fmt.Sprintf("type(0x%02x)", uint8(t))
}

// Valid reports whether t is a member of the closed enumeration.
func (t TypeID) Valid() bool {
	_, ok := typeTable[t]
	return ok
}

// Size returns the fixed wire size of a basic numeric or bool type, 0 otherwise.
func (t TypeID) Size() int {
	return typeTable[t].size
}

// IsBasic reports whether t is a fixed-size scalar (bool, integer or float).
func (t TypeID) IsBasic() bool {
	return t.Size() > 0
}

// IsInteger reports whether t is a signed or unsigned integer type.
func (t TypeID) IsInteger() bool {
	switch t {
	case TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeInt32, TypeUint32, TypeInt64, TypeUint64:
		return true
	}
	return false
}

// IsSigned reports whether t is a signed integer or floating point type.
func (t TypeID) IsSigned() bool {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeFloat32, TypeFloat64:
		return true
	}
	return false
}

// LookupType resolves a canonical type name back to its id.
func LookupType(name string) (TypeID, bool) {
	for id, info := range typeTable {
		if info.name == name {
			return id, true
		}
	}
	return TypeInvalid, false
}

// Level is the scope hint of a property.
type Level uint8

const (
	LevelLocal Level = iota
	LevelShared
	LevelRemote
)

// String returns the level name as used in logs and the CLI.
func (l Level) String() string {
	switch l {
	case LevelLocal:
		return "local"
	case LevelShared:
		return "shared"
	case LevelRemote:
		return "remote"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// Limits shared by the property layer, the storage layer and the protocol.
const (
	// MaxNameLength bounds property names; names double as storage keys.
	MaxNameLength = 15

	// MaxPropertyID is the largest id representable on the wire.
	MaxPropertyID = 0xFFFF

	// MaxVarintBytes is the longest encoding of a 32-bit varint.
	MaxVarintBytes = 5

	// MaxVariantTypes bounds variant alternatives to the 1-byte tag.
	MaxVariantTypes = 255

	// MaxPathDepth bounds path resolution into structured values.
	MaxPathDepth = 16

	// ProtocolVersion is the MicroProto protocol revision spoken by this module.
	ProtocolVersion = 1

	// DefaultMaxPacket is the default transmit buffer size per client.
	DefaultMaxPacket = 4096
)

// PropertyID is the 16-bit wire identity of a property.
type PropertyID uint16

// ResourceID identifies one resource within a resource property. 0 means none.
type ResourceID uint32
