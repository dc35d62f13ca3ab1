package addresses

import "fmt"

// Family is an output-script family tag, one-to-one with a BIP-44-style
// purpose value.
type Family int

const (
	Legacy Family = iota
	NestedSegwit
	NativeSegwit
	Taproot
)

func (f Family) String() string {
	switch f {
	case Legacy:
		return "legacy"
	case NestedSegwit:
		return "nested_segwit"
	case NativeSegwit:
		return "native_segwit"
	case Taproot:
		return "taproot"
	default:
		return "unknown"
	}
}

// Purpose returns the BIP-44/49/84/86 purpose value for f.
func (f Family) Purpose() uint32 {
	switch f {
	case Legacy:
		return 44
	case NestedSegwit:
		return 49
	case NativeSegwit:
		return 84
	case Taproot:
		return 86
	default:
		return 0
	}
}

// Chain identifies the receive or change side of an account.
type Chain uint32

const (
	Receive Chain = 0
	Change  Chain = 1
)

func (c Chain) String() string {
	if c == Change {
		return "change"
	}
	return "receive"
}

// AllFamilies lists every supported address family in a stable order.
func AllFamilies() []Family {
	return []Family{Legacy, NestedSegwit, NativeSegwit, Taproot}
}

func validateFamily(f Family) error {
	switch f {
	case Legacy, NestedSegwit, NativeSegwit, Taproot:
		return nil
	default:
		return newErr(UnknownFamily, fmt.Sprintf("family tag %d", f), nil)
	}
}

// InputVsize is the conservative virtual size, in vbytes, of a single
// input spending an address of family f.
func (f Family) InputVsize() int64 {
	switch f {
	case Legacy:
		return 148
	case NestedSegwit:
		return 91
	case NativeSegwit:
		return 68
	case Taproot:
		return 58
	default:
		return 0
	}
}

// OutputVsize is the virtual size, in vbytes, of an output paying an
// address of family f.
func (f Family) OutputVsize() int64 {
	switch f {
	case Legacy:
		return 34
	case NestedSegwit:
		return 32
	case NativeSegwit:
		return 31
	case Taproot:
		return 43
	default:
		return 0
	}
}

// DustThreshold is the minimum economic output value for family f; below
// it, a change output is absorbed into the fee instead.
func (f Family) DustThreshold() int64 {
	switch f {
	case Legacy, NestedSegwit:
		return 546
	default:
		return 294
	}
}
