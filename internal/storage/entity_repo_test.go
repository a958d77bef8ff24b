package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/better-signer/pkg/types"
	"github.com/better-wallet/better-signer/tests/fixtures"
)

func TestFactorInstanceRowRoundTrip(t *testing.T) {
	fs := fixtures.NewTestFactorSource(types.FactorSourceLedger, fixtures.MnemonicLetter)

	for _, path := range []types.DerivationPath{
		"m/44H/1022H/2H/525H/1460H/0H",
		"m/44H/1022H/0H/0/0H",
	} {
		t.Run(string(path), func(t *testing.T) {
			original := fs.Instance(path)
			decoded, err := decodeFactorInstance(encodeFactorInstance(original))
			require.NoError(t, err)
			assert.Equal(t, original, decoded)
		})
	}
}

func TestFactorInstanceRowDecodeErrors(t *testing.T) {
	fs := fixtures.NewTestFactorSource(types.FactorSourceDevice, fixtures.MnemonicAbandon)
	valid := encodeFactorInstance(fs.Instance("m/44H/1022H/2H/525H/1460H/0H"))

	tests := []struct {
		name   string
		mutate func(r *factorInstanceRow)
	}{
		{"bad factor source id", func(r *factorInstanceRow) { r.FactorSourceID = "device" }},
		{"unknown kind", func(r *factorInstanceRow) { r.FactorSourceID = "trezor:" + fs.ID().Body.Hex() }},
		{"unknown curve", func(r *factorInstanceRow) { r.Curve = "p256" }},
		{"key length does not fit curve", func(r *factorInstanceRow) { r.Curve = "secp256k1" }},
		{"odd hex", func(r *factorInstanceRow) { r.PublicKeyHex = r.PublicKeyHex[1:] }},
		{"empty path", func(r *factorInstanceRow) { r.DerivationPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := valid
			tt.mutate(&row)
			_, err := decodeFactorInstance(row)
			assert.Error(t, err)
		})
	}
}
