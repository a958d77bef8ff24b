package types

import (
	"fmt"
	"strings"
)

// NetworkID is the numeric id of a ledger network
type NetworkID uint8

const (
	NetworkMainnet   NetworkID = 0x01
	NetworkStokenet  NetworkID = 0x02
	NetworkSimulator NetworkID = 0xf2
)

// HRPSuffix is the network part of address human readable prefixes
func (n NetworkID) HRPSuffix() string {
	switch n {
	case NetworkMainnet:
		return "rdx"
	case NetworkStokenet:
		return "tdx_2_"
	case NetworkSimulator:
		return "sim"
	default:
		return fmt.Sprintf("tdx_%x_", uint8(n))
	}
}

// Address is the bech32m address of an account, persona or component
type Address string

func (a Address) String() string {
	return string(a)
}

// IsAccount reports whether the address has the account HRP prefix
func (a Address) IsAccount() bool {
	return strings.HasPrefix(string(a), "account_")
}

// IsIdentity reports whether the address has the identity (persona) HRP prefix
func (a Address) IsIdentity() bool {
	return strings.HasPrefix(string(a), "identity_")
}

// EntityKind distinguishes accounts from personas
type EntityKind string

const (
	EntityKindAccount EntityKind = "account"
	EntityKindPersona EntityKind = "persona"
)

// UnsecuredEntityControl is controlled by a single factor instance
type UnsecuredEntityControl struct {
	TransactionSigning FactorInstance
}

// SecurityState describes how an entity is controlled.
// Only the unsecured variant is signable by this module.
type SecurityState struct {
	Unsecured *UnsecuredEntityControl
}

// Entity is an account or persona
type Entity struct {
	Address       Address
	Kind          EntityKind
	NetworkID     NetworkID
	DisplayName   string
	SecurityState SecurityState
	Hidden        bool
}

// TransactionSigningInstance returns the factor instance used to sign for this entity
func (e Entity) TransactionSigningInstance() (FactorInstance, bool) {
	if e.SecurityState.Unsecured == nil {
		return FactorInstance{}, false
	}
	return e.SecurityState.Unsecured.TransactionSigning, true
}
