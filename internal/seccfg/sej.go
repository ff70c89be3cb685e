package seccfg

// Algo identifies which SEJ flag tuple reproduces the stored hash
// (spec.md §4.6).
type Algo int

const (
	AlgoUnknown Algo = iota
	AlgoSW
	AlgoHW
	AlgoHWv3
	AlgoHWv4
)

func (a Algo) String() string {
	switch a {
	case AlgoSW:
		return "SW"
	case AlgoHW:
		return "HW"
	case AlgoHWv3:
		return "HWv3"
	case AlgoHWv4:
		return "HWv4"
	default:
		return "Unknown"
	}
}

// flagTuple is (legacy, antiClone, xor) for one algorithm; encrypt is
// supplied by the caller per direction (spec.md §4.6's table, encrypt
// marked '*' because both parse and write reuse the same tuple with
// opposite encrypt values).
type flagTuple struct {
	legacy    bool
	antiClone bool
	xor       bool
}

var algoFlags = map[Algo]flagTuple{
	AlgoSW:   {legacy: false, antiClone: false, xor: false},
	AlgoHW:   {legacy: false, antiClone: true, xor: true},
	AlgoHWv3: {legacy: true, antiClone: true, xor: false},
	AlgoHWv4: {legacy: false, antiClone: true, xor: false},
}

// probeOrder is the fixed algorithm trial order spec.md §4.6 mandates.
var probeOrder = []Algo{AlgoSW, AlgoHW, AlgoHWv3, AlgoHWv4}

// Invoker is the SEJ hardware crypto invocation capability a live DA
// extension bring-up exposes (xflash.Ext.ExtSej satisfies this without an
// explicit assertion, spec.md §4.5; the XML engine's Ext has no ExtSej).
type Invoker interface {
	ExtSej(data []byte, encrypt, legacy, antiClone, xorFlag bool) ([]byte, error)
}

func invoke(sej Invoker, data []byte, encrypt bool, algo Algo) ([]byte, error) {
	f := algoFlags[algo]
	return sej.ExtSej(data, encrypt, f.legacy, f.antiClone, f.xor)
}
