package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// PayloadKind is the type of a signable payload
type PayloadKind string

const (
	PayloadTransaction PayloadKind = "transaction"
	PayloadSubintent   PayloadKind = "subintent"
	PayloadAuth        PayloadKind = "auth"
)

// Hash domain separators. Each payload type hashes under its own prefix so a
// signature over one type can never verify as a signature over another.
var (
	transactionIntentPrefix = []byte("TransactionIntent")
	subintentPrefix         = []byte("Subintent")
	signedIntentPrefix      = []byte("SignedTransactionIntent")
	notarizedPrefix         = []byte("NotarizedTransaction")
	rolaPrefix              = []byte{0x52}
)

// PayloadID is the strongly typed hash of a signable payload.
// The set of implementations is closed.
type PayloadID interface {
	PayloadKind() PayloadKind
	Hash() Hash
	String() string
	payloadID()
}

// TransactionIntentHash identifies a transaction intent
type TransactionIntentHash Hash

func (h TransactionIntentHash) PayloadKind() PayloadKind { return PayloadTransaction }
func (h TransactionIntentHash) Hash() Hash { return Hash(h) }
func (h TransactionIntentHash) String() string { return "txid_" + Hash(h).Hex() }
func (TransactionIntentHash) payloadID() {}

// SubintentHash identifies a subintent
type SubintentHash Hash

func (h SubintentHash) PayloadKind() PayloadKind { return PayloadSubintent }
func (h SubintentHash) Hash() Hash { return Hash(h) }
func (h SubintentHash) String() string { return "subtxid_" + Hash(h).Hex() }
func (SubintentHash) payloadID() {}

// AuthIntentHash identifies an authentication intent
type AuthIntentHash Hash

func (h AuthIntentHash) PayloadKind() PayloadKind { return PayloadAuth }
func (h AuthIntentHash) Hash() Hash { return Hash(h) }
func (h AuthIntentHash) String() string { return "auth_" + Hash(h).Hex() }
func (AuthIntentHash) payloadID() {}

// SignedIntentHash is the hash the notary signs
type SignedIntentHash Hash

func (h SignedIntentHash) Hash() Hash { return Hash(h) }
func (h SignedIntentHash) String() string { return "signedintent_" + Hash(h).Hex() }

// SignablePayload is anything a factor source can be asked to sign
type SignablePayload interface {
	PayloadID() PayloadID
}

// Manifest is a transaction manifest in its textual form plus blobs
type Manifest struct {
	Instructions string
	Blobs        [][]byte
}

// TransactionHeader is the header of a transaction intent
type TransactionHeader struct {
	NetworkID           NetworkID
	StartEpochInclusive uint64
	EndEpochExclusive   uint64
	Nonce               uint32
	NotaryPublicKey     PublicKey
	NotaryIsSignatory   bool
	TipPercentage       uint16
}

// TransactionIntent is an unsigned transaction
type TransactionIntent struct {
	Header   TransactionHeader
	Manifest Manifest
	Message  string
}

// Compile produces the canonical encoding of the intent
func (t TransactionIntent) Compile() (CompiledTransactionIntent, error) {
	b, err := rlp.EncodeToBytes(&t)
	if err != nil {
		return CompiledTransactionIntent{}, fmt.Errorf("failed to compile transaction intent: %w", err)
	}
	return CompiledTransactionIntent{Bytes: b}, nil
}

// CompiledTransactionIntent is the canonical byte form of a TransactionIntent
type CompiledTransactionIntent struct {
	Bytes []byte
}

// PayloadID returns the transaction intent hash
func (c CompiledTransactionIntent) PayloadID() PayloadID {
	return c.IntentHash()
}

// IntentHash is the typed hash of the compiled intent
func (c CompiledTransactionIntent) IntentHash() TransactionIntentHash {
	return TransactionIntentHash(Blake2b256(transactionIntentPrefix, c.Bytes))
}

// Decompile decodes the compiled bytes back into an intent
func (c CompiledTransactionIntent) Decompile() (TransactionIntent, error) {
	var intent TransactionIntent
	if err := rlp.DecodeBytes(c.Bytes, &intent); err != nil {
		return TransactionIntent{}, fmt.Errorf("failed to decompile transaction intent: %w", err)
	}
	return intent, nil
}

// SubintentHeader is the header of a subintent
type SubintentHeader struct {
	NetworkID           NetworkID
	StartEpochInclusive uint64
	EndEpochExclusive   uint64
	Nonce               uint32
}

// Subintent is a partial transaction that is signed but not notarized
type Subintent struct {
	Header   SubintentHeader
	Manifest Manifest
	Message  string
}

// Compile produces the canonical encoding of the subintent
func (s Subintent) Compile() (CompiledSubintent, error) {
	b, err := rlp.EncodeToBytes(&s)
	if err != nil {
		return CompiledSubintent{}, fmt.Errorf("failed to compile subintent: %w", err)
	}
	return CompiledSubintent{Bytes: b}, nil
}

// CompiledSubintent is the canonical byte form of a Subintent
type CompiledSubintent struct {
	Bytes []byte
}

// PayloadID returns the subintent hash
func (c CompiledSubintent) PayloadID() PayloadID {
	return c.SubintentHash()
}

// SubintentHash is the typed hash of the compiled subintent
func (c CompiledSubintent) SubintentHash() SubintentHash {
	return SubintentHash(Blake2b256(subintentPrefix, c.Bytes))
}

// Decompile decodes the compiled bytes back into a subintent
func (c CompiledSubintent) Decompile() (Subintent, error) {
	var s Subintent
	if err := rlp.DecodeBytes(c.Bytes, &s); err != nil {
		return Subintent{}, fmt.Errorf("failed to decompile subintent: %w", err)
	}
	return s, nil
}

// AuthIntent is a dApp login challenge
type AuthIntent struct {
	Challenge             Hash
	Origin                string
	DappDefinitionAddress Address
}

// PayloadID returns the auth intent hash
func (a AuthIntent) PayloadID() PayloadID {
	return a.AuthHash()
}

// AuthHash hashes 'R' || challenge || len(dApp address) || dApp address || origin
func (a AuthIntent) AuthHash() AuthIntentHash {
	addr := []byte(a.DappDefinitionAddress)
	return AuthIntentHash(Blake2b256(rolaPrefix, a.Challenge[:], []byte{byte(len(addr))}, addr, []byte(a.Origin)))
}

// SignedIntent is an intent together with all its intent signatures
type SignedIntent struct {
	Intent           TransactionIntent
	IntentSignatures []SignatureWithPublicKey
}

// Hash returns the hash the notary signs
func (s SignedIntent) Hash() (SignedIntentHash, error) {
	b, err := rlp.EncodeToBytes(&s)
	if err != nil {
		return SignedIntentHash{}, fmt.Errorf("failed to encode signed intent: %w", err)
	}
	return SignedIntentHash(Blake2b256(signedIntentPrefix, b)), nil
}

// NotarizedTransaction is a submission-ready transaction
type NotarizedTransaction struct {
	SignedIntent    SignedIntent
	NotarySignature Signature
}

// Compile produces the bytes submitted to the network
func (n NotarizedTransaction) Compile() ([]byte, error) {
	b, err := rlp.EncodeToBytes(&n)
	if err != nil {
		return nil, fmt.Errorf("failed to compile notarized transaction: %w", err)
	}
	return append(append([]byte{}, notarizedPrefix...), b...), nil
}
