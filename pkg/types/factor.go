package types

import (
	"fmt"
	"strings"
	"time"
)

// FactorSourceKind is the tag of the FactorSource union
type FactorSourceKind string

const (
	// FactorSourceDevice is a mnemonic kept in encrypted local storage behind an access gate
	FactorSourceDevice FactorSourceKind = "device"

	// FactorSourceLedger is a mnemonic held on a separate hardware signing device
	FactorSourceLedger FactorSourceKind = "ledger_hq_hardware_wallet"

	// FactorSourceOffDeviceMnemonic is a mnemonic the user re-types every time it is needed
	FactorSourceOffDeviceMnemonic FactorSourceKind = "off_device_mnemonic"
)

// ParseFactorSourceKind validates a kind string
func ParseFactorSourceKind(s string) (FactorSourceKind, error) {
	switch k := FactorSourceKind(s); k {
	case FactorSourceDevice, FactorSourceLedger, FactorSourceOffDeviceMnemonic:
		return k, nil
	default:
		return "", fmt.Errorf("unknown factor source kind: %s", s)
	}
}

// FactorSourceID identifies a factor source. Body is the blake2b hash of the
// public key derived from the seed at the identification path, so it depends
// only on the seed material.
type FactorSourceID struct {
	Kind FactorSourceKind
	Body Hash
}

func (id FactorSourceID) String() string {
	return string(id.Kind) + ":" + id.Body.Hex()
}

// SameSeed reports whether both ids were derived from the same seed, regardless of kind
func (id FactorSourceID) SameSeed(other FactorSourceID) bool {
	return id.Body == other.Body
}

// ParseFactorSourceID parses the "kind:hex" form produced by String
func ParseFactorSourceID(s string) (FactorSourceID, error) {
	kind, body, ok := strings.Cut(s, ":")
	if !ok {
		return FactorSourceID{}, fmt.Errorf("invalid factor source id: %q", s)
	}
	k, err := ParseFactorSourceKind(kind)
	if err != nil {
		return FactorSourceID{}, err
	}
	h, err := HashFromHex(body)
	if err != nil {
		return FactorSourceID{}, fmt.Errorf("invalid factor source id body: %w", err)
	}
	return FactorSourceID{Kind: k, Body: h}, nil
}

// LedgerModel is the hardware device model recorded at registration
type LedgerModel string

const (
	LedgerModelNanoS     LedgerModel = "nanoS"
	LedgerModelNanoSPlus LedgerModel = "nanoS+"
	LedgerModelNanoX     LedgerModel = "nanoX"
)

// FactorSourceHint carries display metadata
type FactorSourceHint struct {
	Label     string
	Model     LedgerModel // ledger only
	WordCount int         // off-device mnemonic only
}

// FactorSource is an owner of private key material
type FactorSource struct {
	ID         FactorSourceID
	Hint       FactorSourceHint
	AddedOn    time.Time
	LastUsedOn time.Time
}

// Kind returns the variant tag
func (f FactorSource) Kind() FactorSourceKind {
	return f.ID.Kind
}

// FactorInstance names one usable key under a factor source
type FactorInstance struct {
	FactorSourceID FactorSourceID
	PublicKey      PublicKey
	DerivationPath DerivationPath
}

// OwnedFactorInstance tags a factor instance with the entity it authenticates for
type OwnedFactorInstance struct {
	Owner          Address
	FactorInstance FactorInstance
}
