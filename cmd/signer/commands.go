package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/better-wallet/better-signer/internal/ceremony"
	"github.com/better-wallet/better-signer/internal/crypto"
	"github.com/better-wallet/better-signer/internal/storage"
	"github.com/better-wallet/better-signer/internal/validation"
	apperrors "github.com/better-wallet/better-signer/pkg/errors"
	"github.com/better-wallet/better-signer/pkg/types"
)

const (
	flagKind         = "kind"
	flagLabel        = "label"
	flagGenerate     = "generate"
	flagFactorSource = "factor-source"
	flagIndex        = "index"
	flagAddress      = "address"
	flagName         = "name"
	flagManifest     = "manifest"
	flagMessage      = "message"
	flagTip          = "tip"
	flagChallenge    = "challenge"
	flagOrigin       = "origin"
	flagDapp         = "dapp"
	flagCeremony     = "ceremony"
	flagState        = "state"
	flagLimit        = "limit"
)

type signatureOutput struct {
	PublicKey string `json:"public_key"`
	Curve     string `json:"curve"`
	Signature string `json:"signature"`
}

func newSignatureOutput(pub types.PublicKey, sig types.Signature) signatureOutput {
	return signatureOutput{PublicKey: pub.Hex(), Curve: pub.Curve.String(), Signature: sig.Hex()}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ceremonyError turns a user rejection into a quiet exit
func ceremonyError(cmd *cobra.Command, err error) error {
	if apperrors.IsSilent(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "cancelled")
		return nil
	}
	return err
}

func readManifest(path string) (types.Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	return types.Manifest{Instructions: string(b)}, nil
}

func factorSourceFlag(cmd *cobra.Command, a *app) (types.FactorSource, error) {
	raw, err := cmd.Flags().GetString(flagFactorSource)
	if err != nil {
		return types.FactorSource{}, err
	}
	id, err := types.ParseFactorSourceID(raw)
	if err != nil {
		return types.FactorSource{}, err
	}
	fs, err := a.factors.Get(cmd.Context(), id)
	if err != nil {
		return types.FactorSource{}, err
	}
	return *fs, nil
}

func importMnemonicCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-mnemonic",
		Short: "Register a device or off-device mnemonic factor source",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			kindFlag, _ := cmd.Flags().GetString(flagKind)
			kind, err := types.ParseFactorSourceKind(kindFlag)
			if err != nil {
				return err
			}
			if kind == types.FactorSourceLedger {
				return fmt.Errorf("use add-ledger for hardware wallets")
			}
			label, _ := cmd.Flags().GetString(flagLabel)
			generate, _ := cmd.Flags().GetBool(flagGenerate)

			var m crypto.MnemonicWithPassphrase
			if generate {
				passphrase, err := a.console.prompt(ctx, "Passphrase (empty for none): ")
				if err != nil {
					return err
				}
				if m, err = crypto.GenerateMnemonic(passphrase); err != nil {
					return err
				}
				a.console.printf("Write down these words:\n%s\n", m.Mnemonic)
			} else {
				words, err := a.console.prompt(ctx, "Mnemonic: ")
				if err != nil {
					return err
				}
				passphrase, err := a.console.prompt(ctx, "Passphrase (empty for none): ")
				if err != nil {
					return err
				}
				if m, err = crypto.NewMnemonicWithPassphrase(strings.Fields(words), passphrase); err != nil {
					return err
				}
			}

			id, err := m.FactorSourceID(kind)
			if err != nil {
				return err
			}
			fs := &types.FactorSource{
				ID:      id,
				Hint:    types.FactorSourceHint{Label: label, WordCount: m.WordCount()},
				AddedOn: time.Now().UTC(),
			}
			if kind == types.FactorSourceDevice {
				if err := a.mnemonics.Save(ctx, id, m); err != nil {
					return err
				}
			}
			if err := a.factors.Create(ctx, fs); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"factor_source_id": id.String()})
		},
	}
	cmd.Flags().String(flagKind, string(types.FactorSourceDevice), "device or off_device_mnemonic")
	cmd.Flags().String(flagLabel, "", "Display label")
	cmd.Flags().Bool(flagGenerate, false, "Generate a new 24 word mnemonic instead of reading one")
	return cmd
}

func addLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-ledger",
		Short: "Register the connected hardware wallet as a factor source",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			fs, err := a.ledger.DeviceInfo(cmd.Context())
			if err != nil {
				return err
			}
			fs.Hint.Label, _ = cmd.Flags().GetString(flagLabel)
			fs.AddedOn = time.Now().UTC()
			if err := a.factors.Create(cmd.Context(), &fs); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"factor_source_id": fs.ID.String(), "model": string(fs.Hint.Model)})
		},
	}
	cmd.Flags().String(flagLabel, "", "Display label")
	return cmd
}

func addEntityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-entity",
		Short: "Derive the signing key of an account or persona and save it to the profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			fs, err := factorSourceFlag(cmd, a)
			if err != nil {
				return err
			}
			kind, _ := cmd.Flags().GetString(flagKind)
			index, _ := cmd.Flags().GetUint32(flagIndex)
			address, _ := cmd.Flags().GetString(flagAddress)
			name, _ := cmd.Flags().GetString(flagName)

			entityKind := types.EntityKind(kind)
			if entityKind != types.EntityKindAccount && entityKind != types.EntityKindPersona {
				return fmt.Errorf("unknown entity kind: %s", kind)
			}

			instances, err := a.orchestrator.DeriveEntityInstances(ctx, fs, a.cfg.NetworkID, entityKind, index, 1)
			if err != nil {
				return ceremonyError(cmd, err)
			}
			if len(instances) != 1 {
				return fmt.Errorf("expected one derived instance, got %d", len(instances))
			}

			addr := types.Address(address)
			if addr == "" {
				if addr, err = types.VirtualEntityAddress(entityKind, a.cfg.NetworkID, instances[0].PublicKey); err != nil {
					return err
				}
			}
			if err := validation.ValidateEntityAddress(addr, entityKind, a.cfg.NetworkID); err != nil {
				return err
			}

			entity := &types.Entity{
				Address:     addr,
				Kind:        entityKind,
				NetworkID:   a.cfg.NetworkID,
				DisplayName: name,
				SecurityState: types.SecurityState{
					Unsecured: &types.UnsecuredEntityControl{TransactionSigning: instances[0]},
				},
			}
			if err := a.entities.Create(ctx, entity); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{
				"address":         addr.String(),
				"public_key":      instances[0].PublicKey.Hex(),
				"derivation_path": instances[0].DerivationPath.String(),
			})
		},
	}
	cmd.Flags().String(flagFactorSource, "", "Factor source id (kind:hex)")
	cmd.Flags().String(flagKind, string(types.EntityKindAccount), "account or persona")
	cmd.Flags().Uint32(flagIndex, 0, "Entity index")
	cmd.Flags().String(flagAddress, "", "Entity address, derived from the key when empty")
	cmd.Flags().String(flagName, "", "Display name")
	_ = cmd.MarkFlagRequired(flagFactorSource)
	return cmd
}

func listEntitiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-entities",
		Short: "List the active accounts and personas of the configured network",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			profile, err := a.profile(cmd.Context())
			if err != nil {
				return err
			}
			type row struct {
				Address      string `json:"address"`
				Kind         string `json:"kind"`
				Name         string `json:"name,omitempty"`
				FactorSource string `json:"factor_source,omitempty"`
			}
			rows := make([]row, 0, len(profile.Entities()))
			for _, e := range profile.Entities() {
				r := row{Address: e.Address.String(), Kind: string(e.Kind), Name: e.DisplayName}
				if instance, ok := e.TransactionSigningInstance(); ok {
					r.FactorSource = instance.FactorSourceID.String()
				}
				rows = append(rows, r)
			}
			return writeJSON(cmd, rows)
		},
	}
}

func signTransactionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-transaction",
		Short: "Sign and notarize a transaction manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			path, _ := cmd.Flags().GetString(flagManifest)
			m, err := readManifest(path)
			if err != nil {
				return err
			}
			message, _ := cmd.Flags().GetString(flagMessage)
			tip, _ := cmd.Flags().GetUint16(flagTip)
			if err := validation.ValidateTransaction(m, message); err != nil {
				return err
			}

			profile, err := a.profile(ctx)
			if err != nil {
				return err
			}
			result, err := a.orchestrator.SignTransaction(ctx, profile, ceremony.TransactionRequest{
				Manifest:      m,
				Message:       message,
				TipPercentage: tip,
			})
			if err != nil {
				return ceremonyError(cmd, err)
			}

			sigs := make([]signatureOutput, 0, len(result.NotarizedTransaction.SignedIntent.IntentSignatures))
			for _, s := range result.NotarizedTransaction.SignedIntent.IntentSignatures {
				sigs = append(sigs, newSignatureOutput(s.PublicKey, s.Signature))
			}
			return writeJSON(cmd, map[string]any{
				"intent_hash":      result.IntentHash.String(),
				"end_epoch":        result.EndEpoch,
				"intent_signers":   sigs,
				"notarized_tx_hex": hex.EncodeToString(result.Compiled),
			})
		},
	}
	cmd.Flags().String(flagManifest, "", "Path to the transaction manifest")
	cmd.Flags().String(flagMessage, "", "Plaintext message attached to the intent")
	cmd.Flags().Uint16(flagTip, 0, "Validator tip percentage")
	_ = cmd.MarkFlagRequired(flagManifest)
	return cmd
}

func signSubintentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-subintent",
		Short: "Sign a subintent manifest for a pre-authorization",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			path, _ := cmd.Flags().GetString(flagManifest)
			m, err := readManifest(path)
			if err != nil {
				return err
			}
			message, _ := cmd.Flags().GetString(flagMessage)
			if err := validation.ValidateTransaction(m, message); err != nil {
				return err
			}

			header, err := a.orchestrator.SubintentHeader(ctx, a.cfg.NetworkID)
			if err != nil {
				return err
			}
			profile, err := a.profile(ctx)
			if err != nil {
				return err
			}
			signed, err := a.orchestrator.SignSubintent(ctx, profile, types.Subintent{Header: header, Manifest: m, Message: message})
			if err != nil {
				return ceremonyError(cmd, err)
			}

			compiled, err := signed.Subintent.Compile()
			if err != nil {
				return err
			}
			sigs := make([]signatureOutput, 0, len(signed.Signatures))
			for _, s := range signed.Signatures {
				sigs = append(sigs, newSignatureOutput(s.PublicKey, s.Signature))
			}
			return writeJSON(cmd, map[string]any{
				"subintent_hash":     compiled.SubintentHash().String(),
				"compiled_subintent": hex.EncodeToString(compiled.Bytes),
				"signatures":         sigs,
			})
		},
	}
	cmd.Flags().String(flagManifest, "", "Path to the subintent manifest")
	cmd.Flags().String(flagMessage, "", "Plaintext message attached to the subintent")
	_ = cmd.MarkFlagRequired(flagManifest)
	return cmd
}

func signAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-auth",
		Short: "Prove ownership of entities to a dApp",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			challengeHex, _ := cmd.Flags().GetString(flagChallenge)
			challenge, err := types.HashFromHex(challengeHex)
			if err != nil {
				return fmt.Errorf("invalid challenge: %w", err)
			}
			origin, _ := cmd.Flags().GetString(flagOrigin)
			if err := validation.ValidateOrigin(origin); err != nil {
				return err
			}
			dapp, _ := cmd.Flags().GetString(flagDapp)
			if err := validation.ValidateEntityAddress(types.Address(dapp), types.EntityKindAccount, a.cfg.NetworkID); err != nil {
				return fmt.Errorf("invalid dApp definition: %w", err)
			}
			raw, _ := cmd.Flags().GetStringSlice(flagAddress)
			addresses := make([]types.Address, 0, len(raw))
			for _, s := range raw {
				addresses = append(addresses, types.Address(s))
			}

			profile, err := a.profile(ctx)
			if err != nil {
				return err
			}
			intent := types.AuthIntent{Challenge: challenge, Origin: origin, DappDefinitionAddress: types.Address(dapp)}
			proofs, err := a.orchestrator.SignAuth(ctx, profile, intent, addresses)
			if err != nil {
				return ceremonyError(cmd, err)
			}

			out := make(map[string]signatureOutput, len(proofs))
			for _, p := range proofs {
				out[p.Entity.String()] = newSignatureOutput(p.PublicKey, p.Signature)
			}
			return writeJSON(cmd, out)
		},
	}
	cmd.Flags().String(flagChallenge, "", "32 byte challenge, hex encoded")
	cmd.Flags().String(flagOrigin, "", "Origin of the requesting dApp")
	cmd.Flags().String(flagDapp, "", "dApp definition address")
	cmd.Flags().StringSlice(flagAddress, nil, "Entity to prove, repeatable")
	_ = cmd.MarkFlagRequired(flagChallenge)
	_ = cmd.MarkFlagRequired(flagOrigin)
	_ = cmd.MarkFlagRequired(flagDapp)
	_ = cmd.MarkFlagRequired(flagAddress)
	return cmd
}

func spotCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spot-check",
		Short: "Check that a factor source is reachable and still yields its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			fs, err := factorSourceFlag(cmd, a)
			if err != nil {
				return err
			}
			ok, err := a.orchestrator.SpotCheck(cmd.Context(), fs)
			if err != nil {
				return ceremonyError(cmd, err)
			}
			if !ok {
				return fmt.Errorf("factor source %s did not match", fs.ID)
			}
			return writeJSON(cmd, map[string]any{"factor_source_id": fs.ID.String(), "matches": ok})
		},
	}
	cmd.Flags().String(flagFactorSource, "", "Factor source id (kind:hex)")
	_ = cmd.MarkFlagRequired(flagFactorSource)
	return cmd
}

func ceremonyLogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ceremony-log",
		Short: "Show recorded ceremony state transitions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			opts := storage.CeremonyEventQuery{}
			if id, _ := cmd.Flags().GetString(flagCeremony); id != "" {
				opts.CeremonyID = &id
			}
			if state, _ := cmd.Flags().GetString(flagState); state != "" {
				opts.ToState = &state
			}
			opts.Limit, _ = cmd.Flags().GetInt(flagLimit)

			events, err := a.events.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}
			type row struct {
				Ceremony string    `json:"ceremony_id"`
				From     string    `json:"from"`
				To       string    `json:"to"`
				At       time.Time `json:"at"`
			}
			rows := make([]row, 0, len(events))
			for _, e := range events {
				rows = append(rows, row{Ceremony: e.CeremonyID, From: e.FromState, To: e.ToState, At: e.CreatedAt})
			}
			return writeJSON(cmd, rows)
		},
	}
	cmd.Flags().String(flagCeremony, "", "Only this ceremony id")
	cmd.Flags().String(flagState, "", "Only transitions into this state")
	cmd.Flags().Int(flagLimit, 50, "Maximum number of events")
	return cmd
}
