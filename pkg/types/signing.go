package types

// TransactionSignRequestInput is one payload and the owned factor instances
// that must sign it with a single factor source
type TransactionSignRequestInput struct {
	Payload              SignablePayload
	OwnedFactorInstances []OwnedFactorInstance
}

// SignatureCount is the number of signatures this request must produce
func (r TransactionSignRequestInput) SignatureCount() int {
	return len(r.OwnedFactorInstances)
}

// PerFactorSourceInput is the batch handed to a single factor source in one ceremony
type PerFactorSourceInput struct {
	FactorSourceID FactorSourceID
	PerTransaction []TransactionSignRequestInput

	// InvalidTransactionsIfNeglected lists the payloads that cannot be
	// submitted if this factor source contributes nothing
	InvalidTransactionsIfNeglected []PayloadID
}

// ExpectedSignatures is the exact number of signatures a Signed outcome must carry
func (in PerFactorSourceInput) ExpectedSignatures() int {
	n := 0
	for _, tx := range in.PerTransaction {
		n += tx.SignatureCount()
	}
	return n
}

// PayloadIDs returns the ids of every payload in the batch, in input order
func (in PerFactorSourceInput) PayloadIDs() []PayloadID {
	ids := make([]PayloadID, 0, len(in.PerTransaction))
	for _, tx := range in.PerTransaction {
		ids = append(ids, tx.Payload.PayloadID())
	}
	return ids
}

// HDSignatureInput names what an HDSignature authenticates
type HDSignatureInput struct {
	PayloadID           PayloadID
	OwnedFactorInstance OwnedFactorInstance
}

// HDSignature is a signature tagged with its payload and owned factor instance
type HDSignature struct {
	Input     HDSignatureInput
	Signature SignatureWithPublicKey
}

// PublicKey is the key that produced the signature
func (s HDSignature) PublicKey() PublicKey {
	return s.Signature.PublicKey
}

// NeglectReason explains why a factor source contributed no signatures
type NeglectReason string

const (
	NeglectUserExplicitlySkipped NeglectReason = "user_explicitly_skipped"
	NeglectFailure               NeglectReason = "failure"
)

// NeglectedFactor records a factor source that produced nothing
type NeglectedFactor struct {
	Reason NeglectReason
}

// FactorOutcome is either a full list of signatures or a neglect. A factor
// source is never partially trusted.
type FactorOutcome struct {
	Signed    []HDSignature
	Neglected *NeglectedFactor
}

// IsSigned reports whether the outcome carries signatures
func (o FactorOutcome) IsSigned() bool {
	return o.Neglected == nil
}

// PerFactorOutcome is the result of SignMono for one factor source
type PerFactorOutcome struct {
	FactorSourceID FactorSourceID
	Outcome        FactorOutcome
}

// SignedOutcome builds a successful outcome
func SignedOutcome(id FactorSourceID, signatures []HDSignature) *PerFactorOutcome {
	return &PerFactorOutcome{FactorSourceID: id, Outcome: FactorOutcome{Signed: signatures}}
}

// NeglectedOutcome builds an outcome for a factor source that contributed nothing
func NeglectedOutcome(id FactorSourceID, reason NeglectReason) *PerFactorOutcome {
	return &PerFactorOutcome{FactorSourceID: id, Outcome: FactorOutcome{Neglected: &NeglectedFactor{Reason: reason}}}
}

// NotarizationResult is the submission-ready output of a transaction ceremony
type NotarizationResult struct {
	IntentHash           TransactionIntentHash
	EndEpoch             uint64
	NotarizedTransaction NotarizedTransaction
	Compiled             []byte
}

// SignedSubintent is a subintent with all its signatures. Subintents are not notarized.
type SignedSubintent struct {
	Subintent  Subintent
	Signatures []SignatureWithPublicKey
}

// AuthProof is the signature of one entity over an auth intent
type AuthProof struct {
	Entity    Address
	PublicKey PublicKey
	Signature Signature
}
