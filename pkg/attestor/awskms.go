package attestor

import (
	"bytes"
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/types"
)

// kmsAPI is the subset of the KMS client used by the attestor
type kmsAPI interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// KMSAttestor signs root commitments with a secp256k1 key held in AWS KMS.
// The key never leaves KMS; signatures are recoverable 65-byte Ethereum
// style signatures so anyone can verify with the published public key.
type KMSAttestor struct {
	logger    *zap.Logger
	kmsClient kmsAPI
	keyID     string
	publicKey *cryptoEcdsa.PublicKey
}

// NewKMSAttestor creates an attestor for an existing ECC_SECG_P256K1 key.
// The public key is fetched once at construction.
func NewKMSAttestor(ctx context.Context, awsCfg aws.Config, keyID string, logger *zap.Logger) (*KMSAttestor, error) {
	if keyID == "" {
		return nil, fmt.Errorf("KMS key ID cannot be empty")
	}

	a := &KMSAttestor{
		logger:    logger,
		kmsClient: kms.NewFromConfig(awsCfg),
		keyID:     keyID,
	}

	pubKey, err := a.fetchPublicKey(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch public key for key %s", keyID)
	}
	a.publicKey = pubKey

	return a, nil
}

// Scheme returns the attestation scheme identifier
func (a *KMSAttestor) Scheme() string {
	return SchemeAWSKMS
}

// PublicKey returns the uncompressed secp256k1 public key (65 bytes)
func (a *KMSAttestor) PublicKey() []byte {
	return crypto.FromECDSAPub(a.publicKey)
}

// Attest signs the keccak256 digest of the snapshot's root message via KMS
func (a *KMSAttestor) Attest(ctx context.Context, snapshot *types.Snapshot) (*types.RootAttestation, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("cannot attest nil Snapshot")
	}

	msgHash := crypto.Keccak256(Message(snapshot.SnapshotID, snapshot.Root()))

	signOutput, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyID),
		Message:          msgHash,
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      kmstypes.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "KMS sign failed for key %s", a.keyID)
	}

	sig, err := recoverableSignature(signOutput.Signature, msgHash, a.publicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build recoverable signature for key %s", a.keyID)
	}

	return &types.RootAttestation{
		SnapshotID: snapshot.SnapshotID,
		Scheme:     SchemeAWSKMS,
		Payload:    sig,
		PublicKey:  a.PublicKey(),
	}, nil
}

func (a *KMSAttestor) fetchPublicKey(ctx context.Context) (*cryptoEcdsa.PublicKey, error) {
	result, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(a.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	return parseKMSPublicKey(result.PublicKey)
}

// ASN.1 structures for the DER payloads KMS returns
type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// parseKMSPublicKey parses the DER-encoded public key from KMS
func parseKMSPublicKey(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	_, err := asn1.Unmarshal(derBytes, &asn1pubk)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}

	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

// secp256k1 curve order for malleability protection
var secp256k1Order, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

// recoverableSignature converts a DER-encoded ECDSA signature into the
// 65-byte [R || S || V] form, canonicalizing S to the low half of the
// order and brute-forcing the recovery ID against the expected key.
func recoverableSignature(derSig []byte, msgHash []byte, expected *cryptoEcdsa.PublicKey) ([]byte, error) {
	var sigAsn1 asn1EcSig
	_, err := asn1.Unmarshal(derSig, &sigAsn1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 signature: %w", err)
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)

	halfOrder := new(big.Int).Rsh(secp256k1Order, 1)
	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(secp256k1Order, s)
	}

	rBytes := r.FillBytes(make([]byte, 32))
	sBytes := s.FillBytes(make([]byte, 32))
	expectedBytes := crypto.FromECDSAPub(expected)

	for recoveryID := 0; recoveryID < 4; recoveryID++ {
		signature := make([]byte, 65)
		copy(signature[0:32], rBytes)
		copy(signature[32:64], sBytes)
		signature[64] = byte(recoveryID)

		recovered, err := crypto.Ecrecover(msgHash, signature)
		if err != nil {
			continue
		}

		if bytes.Equal(recovered, expectedBytes) {
			return signature, nil
		}
	}

	return nil, fmt.Errorf("no recovery ID produced the expected public key")
}

// VerifyKMS checks a KMS attestation against the snapshot identity and
// root it claims to cover.
func VerifyKMS(att *types.RootAttestation, snapshotID string, root sumtree.Commitment) bool {
	if att == nil || att.Scheme != SchemeAWSKMS {
		return false
	}
	if len(att.Payload) != 65 {
		return false
	}

	msgHash := crypto.Keccak256(Message(snapshotID, root))

	recovered, err := crypto.Ecrecover(msgHash, att.Payload)
	if err != nil {
		return false
	}

	return bytes.Equal(recovered, att.PublicKey)
}
