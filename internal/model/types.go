// Package model holds the data types spec.md §3 describes that are
// shared across the transport/DA/seccfg packages and the Device façade,
// kept separate to avoid an import cycle between internal/da and
// internal/device.
package model

// TargetConfig decodes the device's target_config flags (spec.md §3):
// Secure-Boot-Check, Download-Agent-Authentication, Serial Link Auth.
type TargetConfig struct {
	SBC bool
	SLA bool
	DAA bool
}

// DeviceInfo is supplied to the Device through WithDeviceInfo and kept
// for the session; Device.Init fills in Partitions (spec.md §3).
type DeviceInfo struct {
	HWCode       uint16
	TargetConfig TargetConfig
	SoCID        []byte
	HRID         []byte
	Storage      Storage
	Partitions   []Partition
}

// StorageKind is the flash technology backing the device.
type StorageKind int

const (
	StorageUnknown StorageKind = iota
	StorageEMMC
	StorageUFS
	StorageNAND
)

func (k StorageKind) String() string {
	switch k {
	case StorageEMMC:
		return "EMMC"
	case StorageUFS:
		return "UFS"
	case StorageNAND:
		return "NAND"
	default:
		return "Unknown"
	}
}

// Storage describes the flash device discovered after DA2 boots
// (spec.md §3).
type Storage struct {
	Kind        StorageKind
	RegionSizes map[string]uint64
}

// PartitionKind classifies a GPT partition's role.
type PartitionKind int

const (
	PartitionUser PartitionKind = iota
	PartitionBoot1
	PartitionBoot2
	PartitionOther
)

func (k PartitionKind) String() string {
	switch k {
	case PartitionBoot1:
		return "boot1"
	case PartitionBoot2:
		return "boot2"
	case PartitionOther:
		return "other"
	default:
		return "user"
	}
}

// Partition is one entry of the cached PGPT/SGPT partition table
// (spec.md §3). Name is unique within a DeviceInfo.
type Partition struct {
	Name    string
	Size    uint64
	Address uint64
	Kind    PartitionKind
}

// LockFlag is the seccfg bootloader lock state.
type LockFlag int

const (
	LockFlagLocked LockFlag = iota
	LockFlagUnlocked
)

// SlaPurpose distinguishes the two SLA challenge contexts (spec.md §3);
// kept distinct from internal/auth.Purpose to avoid internal/model
// depending on internal/auth. Nothing in this tree converts between the
// two; the engines use auth.Purpose directly.
type SlaPurpose int

const (
	SlaPurposeBrom SlaPurpose = iota
	SlaPurposeDa
)
