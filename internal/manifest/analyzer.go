// Package manifest extracts the entities whose authorization a transaction
// manifest requires.
package manifest

import (
	"context"
	"regexp"
	"sort"

	"github.com/better-wallet/better-signer/pkg/types"
)

var (
	// CALL_METHOD Address("...") "method"
	callMethodRe = regexp.MustCompile(`CALL_METHOD\s+Address\(\s*"([a-z0-9_]+)"\s*\)\s+"([A-Za-z0-9_]+)"`)

	// Module calls on an entity's metadata and royalty always need the owner
	moduleCallRe = regexp.MustCompile(`(?:CALL_METADATA_METHOD|CALL_ROLE_ASSIGNMENT_METHOD|CALL_ROYALTY_METHOD|SET_METADATA|LOCK_METADATA|REMOVE_METADATA)\s+Address\(\s*"([a-z0-9_]+)"\s*\)`)
)

// Account methods guarded by the owner role
var accountAuthMethods = map[string]bool{
	"withdraw":                            true,
	"withdraw_non_fungibles":              true,
	"lock_fee":                            true,
	"lock_contingent_fee":                 true,
	"lock_fee_and_withdraw":               true,
	"lock_fee_and_withdraw_non_fungibles": true,
	"create_proof_of_amount":              true,
	"create_proof_of_non_fungibles":       true,
	"deposit":                             true,
	"deposit_batch":                       true,
	"burn":                                true,
	"burn_non_fungibles":                  true,
	"set_default_deposit_rule":            true,
	"set_resource_preference":             true,
	"remove_resource_preference":          true,
	"add_authorized_depositor":            true,
	"remove_authorized_depositor":         true,
	"securify":                            true,
}

// Identity methods guarded by the owner role
var identityAuthMethods = map[string]bool{
	"securify":              true,
	"create_proof":          true,
	"create_proof_of_badge": true,
}

// Analyzer scans textual manifests
type Analyzer struct{}

// NewAnalyzer creates a manifest analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// EntitiesRequiringAuth returns the accounts and identities whose owner must
// sign, each in first-appearance order without duplicates
func (a *Analyzer) EntitiesRequiringAuth(ctx context.Context, m types.Manifest) ([]types.Address, []types.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	type hit struct {
		pos     int
		address types.Address
	}
	var hits []hit

	for _, match := range callMethodRe.FindAllStringSubmatchIndex(m.Instructions, -1) {
		address := types.Address(m.Instructions[match[2]:match[3]])
		method := m.Instructions[match[4]:match[5]]
		if requiresAuth(address, method) {
			hits = append(hits, hit{pos: match[0], address: address})
		}
	}
	for _, match := range moduleCallRe.FindAllStringSubmatchIndex(m.Instructions, -1) {
		address := types.Address(m.Instructions[match[2]:match[3]])
		if address.IsAccount() || address.IsIdentity() {
			hits = append(hits, hit{pos: match[0], address: address})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	var accounts, identities []types.Address
	seen := make(map[types.Address]bool)
	for _, h := range hits {
		if seen[h.address] {
			continue
		}
		seen[h.address] = true
		if h.address.IsAccount() {
			accounts = append(accounts, h.address)
		} else {
			identities = append(identities, h.address)
		}
	}
	return accounts, identities, nil
}

func requiresAuth(address types.Address, method string) bool {
	switch {
	case address.IsAccount():
		return accountAuthMethods[method]
	case address.IsIdentity():
		return identityAuthMethods[method]
	default:
		return false
	}
}
