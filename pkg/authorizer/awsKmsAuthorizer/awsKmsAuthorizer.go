package awsKmsAuthorizer

import (
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmsTypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// KMSClient is the subset of the KMS API used for signing.
type KMSClient interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// AWSKMSAuthorizer signs with an ECC_SECG_P256K1 key that never leaves AWS KMS.
type AWSKMSAuthorizer struct {
	logger    *zap.Logger
	kmsClient KMSClient
	keyId     string
	publicKey *ecdsa.PublicKey
	address   common.Address
}

var _ authorizer.IAuthorizer = (*AWSKMSAuthorizer)(nil)

// NewAWSKMSAuthorizerFromConfig builds the KMS client from an AWS config.
func NewAWSKMSAuthorizerFromConfig(ctx context.Context, awsCfg aws.Config, keyId string, logger *zap.Logger) (*AWSKMSAuthorizer, error) {
	return NewAWSKMSAuthorizer(ctx, kms.NewFromConfig(awsCfg), keyId, logger)
}

// NewAWSKMSAuthorizer fetches the key's public key once and derives the signer address from it.
func NewAWSKMSAuthorizer(ctx context.Context, client KMSClient, keyId string, logger *zap.Logger) (*AWSKMSAuthorizer, error) {
	if keyId == "" {
		return nil, fmt.Errorf("kms key id is required")
	}

	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyId)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", keyId)
	}

	pub, err := parseECDSAPublicKey(out.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key for key %s", keyId)
	}

	a := &AWSKMSAuthorizer{
		logger:    logger,
		kmsClient: client,
		keyId:     keyId,
		publicKey: pub,
		address:   crypto.PubkeyToAddress(*pub),
	}
	logger.Sugar().Infow("Loaded KMS signing key", "key_id", keyId, "address", a.address.Hex())
	return a, nil
}

func (a *AWSKMSAuthorizer) Address() common.Address {
	return a.address
}

func (a *AWSKMSAuthorizer) Sign(ctx context.Context, canonical []byte) (*authorizer.SignedMessage, error) {
	digest := authorizer.Digest(canonical)

	sig, err := a.signDigest(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSigning, err)
	}
	return authorizer.NewSignedMessage(canonical, digest, sig)
}

// signDigest asks KMS for a DER signature and converts it to r || s || v with v in {0, 1}.
func (a *AWSKMSAuthorizer) signDigest(ctx context.Context, digest common.Hash) ([]byte, error) {
	out, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          digest[:],
		SigningAlgorithm: kmsTypes.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      kmsTypes.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "kms sign failed for key %s", a.keyId)
	}

	var der asn1EcSig
	if _, err := asn1.Unmarshal(out.Signature, &der); err != nil {
		return nil, fmt.Errorf("failed to parse DER signature: %w", err)
	}

	r := new(big.Int).SetBytes(der.R.Bytes)
	s, _ := authorizer.NormalizeS(new(big.Int).SetBytes(der.S.Bytes))

	sig := make([]byte, types.SignatureLength)
	r.FillBytes(sig[0:32])
	s.FillBytes(sig[32:64])

	for recoveryId := byte(0); recoveryId < 2; recoveryId++ {
		sig[64] = recoveryId
		recovered, err := crypto.SigToPub(digest[:], sig)
		if err != nil {
			a.logger.Debug("Ecrecover failed", zap.Uint8("recoveryId", recoveryId), zap.Error(err))
			continue
		}
		if recovered.X.Cmp(a.publicKey.X) == 0 && recovered.Y.Cmp(a.publicKey.Y) == 0 {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("could not determine valid recovery id for key %s", a.keyId)
}

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

// parseECDSAPublicKey parses the DER SubjectPublicKeyInfo returned by KMS.
func parseECDSAPublicKey(derBytes []byte) (*ecdsa.PublicKey, error) {
	var info asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &info); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	return crypto.UnmarshalPubkey(info.PublicKey.Bytes)
}
