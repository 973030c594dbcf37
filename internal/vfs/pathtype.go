package vfs

import "fmt"

// PathType identifies which namespace of the endpoint a path belongs to.
type PathType uint8

const (
	TypeUnset PathType = iota
	// TypeOS is the operating system filesystem namespace
	TypeOS
	// TypeTSK is the raw/forensic filesystem namespace (Sleuth Kit)
	TypeTSK
	// TypeRegistry is the Windows registry namespace
	TypeRegistry
	// TypeTemp is the transient scratch namespace
	TypeTemp
)

// PathTypes lists every recognized path type, in enumeration order.
var PathTypes = []PathType{TypeOS, TypeTSK, TypeRegistry, TypeTemp}

// legacy store root prefixes, as they appear in hierarchical subject keys
const (
	rootOS       = "fs/os"
	rootTSK      = "fs/tsk"
	rootRegistry = "registry"
	rootTemp     = "temp"
)

func (t PathType) String() string {
	switch t {
	case TypeOS:
		return "os"
	case TypeTSK:
		return "tsk"
	case TypeRegistry:
		return "registry"
	case TypeTemp:
		return "temp"
	default:
		return fmt.Sprintf("unset(%d)", uint8(t))
	}
}

// LegacyRoot returns the root prefix under which paths of this type
// live in the legacy hierarchical store.
func (t PathType) LegacyRoot() string {
	switch t {
	case TypeOS:
		return rootOS
	case TypeTSK:
		return rootTSK
	case TypeRegistry:
		return rootRegistry
	case TypeTemp:
		return rootTemp
	default:
		return ""
	}
}

// PathTypeForRoot maps a legacy root prefix back to its path type.
func PathTypeForRoot(root string) (PathType, bool) {
	switch root {
	case rootOS:
		return TypeOS, true
	case rootTSK:
		return TypeTSK, true
	case rootRegistry:
		return TypeRegistry, true
	case rootTemp:
		return TypeTemp, true
	default:
		return TypeUnset, false
	}
}
