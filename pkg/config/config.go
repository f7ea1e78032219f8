package config

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the proof-of-reserves server configuration
const (
	EnvPORPort             = "POR_PORT"
	EnvPORDataDir          = "POR_DATA_DIR"
	EnvPORPersistenceType  = "POR_PERSISTENCE_TYPE"
	EnvPORRedisAddress     = "POR_REDIS_ADDRESS"
	EnvPORRedisPassword    = "POR_REDIS_PASSWORD"
	EnvPORHashScheme       = "POR_HASH_SCHEME"
	EnvPORAttestorScheme   = "POR_ATTESTOR_SCHEME"
	EnvPORAttestorKey      = "POR_ATTESTOR_KEY"
	EnvPORAttestorKMSKeyID = "POR_ATTESTOR_KMS_KEY_ID"
	EnvPORAWSRegion        = "POR_AWS_REGION"
	EnvPORIssuer           = "POR_ISSUER"
	EnvPORVerbose          = "POR_VERBOSE"
)

// HashScheme selects the hash backing sum commitments. All parties checking
// proofs against a snapshot must use the snapshot's scheme.
type HashScheme string

func (h HashScheme) String() string {
	return string(h)
}

const (
	HashSchemeUnknown HashScheme = "unknown"
	HashSchemeKeccak  HashScheme = "keccak256" // default
	HashSchemeSHA3    HashScheme = "sha3-256"
)

// ParseHashScheme converts a string to a HashScheme
func ParseHashScheme(s string) (HashScheme, error) {
	switch HashScheme(s) {
	case HashSchemeKeccak:
		return HashSchemeKeccak, nil
	case HashSchemeSHA3:
		return HashSchemeSHA3, nil
	default:
		return HashSchemeUnknown, fmt.Errorf("unsupported hash scheme: %s (supported: %s)", s, SupportedHashSchemesString())
	}
}

// SupportedHashSchemesString returns supported schemes for CLI help
func SupportedHashSchemesString() string {
	return fmt.Sprintf("%s, %s", HashSchemeKeccak, HashSchemeSHA3)
}

// PersistenceType selects the snapshot storage backend
type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// ParsePersistenceType converts a string to a PersistenceType
func ParsePersistenceType(s string) (PersistenceType, error) {
	switch PersistenceType(s) {
	case PersistenceTypeMemory:
		return PersistenceTypeMemory, nil
	case PersistenceTypeBadger:
		return PersistenceTypeBadger, nil
	case PersistenceTypeRedis:
		return PersistenceTypeRedis, nil
	default:
		return "", fmt.Errorf("unsupported persistence type: %s (supported: %s, %s, %s)",
			s, PersistenceTypeMemory, PersistenceTypeBadger, PersistenceTypeRedis)
	}
}

// AttestorScheme selects how published roots are signed
type AttestorScheme string

const (
	AttestorSchemeNone   AttestorScheme = "none"
	AttestorSchemeBLS    AttestorScheme = "bls"
	AttestorSchemeJWT    AttestorScheme = "jwt"
	AttestorSchemeAWSKMS AttestorScheme = "awskms"
)

// ParseAttestorScheme converts a string to an AttestorScheme
func ParseAttestorScheme(s string) (AttestorScheme, error) {
	switch AttestorScheme(s) {
	case AttestorSchemeNone, AttestorSchemeBLS, AttestorSchemeJWT, AttestorSchemeAWSKMS:
		return AttestorScheme(s), nil
	default:
		return "", fmt.Errorf("unsupported attestor scheme: %s (supported: %s, %s, %s, %s)",
			s, AttestorSchemeNone, AttestorSchemeBLS, AttestorSchemeJWT, AttestorSchemeAWSKMS)
	}
}

// AttestorConfig configures root signing
type AttestorConfig struct {
	Scheme AttestorScheme `json:"scheme"`
	// SigningKey is hex-encoded secret material for the bls and jwt
	// schemes. Unused for awskms, which keeps the key inside KMS.
	SigningKey string `json:"signing_key,omitempty"`
	// KMSKeyID is the AWS KMS key ID or alias for the awskms scheme.
	KMSKeyID string `json:"kms_key_id,omitempty"`
	// AWSRegion overrides the region for the awskms scheme.
	AWSRegion string `json:"aws_region,omitempty"`
	// Issuer is the iss claim stamped on jwt attestations.
	Issuer string `json:"issuer,omitempty"`
}

// Validate validates the attestor configuration
func (ac *AttestorConfig) Validate() error {
	var allErrors field.ErrorList

	switch ac.Scheme {
	case AttestorSchemeNone:
	case AttestorSchemeBLS, AttestorSchemeJWT:
		if ac.SigningKey == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("signingKey"),
				fmt.Sprintf("signingKey is required for the %s scheme", ac.Scheme)))
		}
		if ac.Scheme == AttestorSchemeJWT && ac.Issuer == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("issuer"), "issuer is required for the jwt scheme"))
		}
	case AttestorSchemeAWSKMS:
		if ac.KMSKeyID == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("kmsKeyId"), "kmsKeyId is required for the awskms scheme"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("scheme"), ac.Scheme,
			[]AttestorScheme{AttestorSchemeNone, AttestorSchemeBLS, AttestorSchemeJWT, AttestorSchemeAWSKMS}))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ServerConfig represents the complete configuration for a proof-of-reserves server
type ServerConfig struct {
	Port int `json:"port"`

	// Storage configuration
	PersistenceType PersistenceType `json:"persistence_type"`
	DataDir         string          `json:"data_dir"`      // badger only
	RedisAddress    string          `json:"redis_address"` // redis only
	RedisPassword   string          `json:"redis_password,omitempty"`

	// Commitment configuration
	HashScheme HashScheme `json:"hash_scheme"`

	// Root attestation
	Attestor AttestorConfig `json:"attestor"`

	// Operational settings
	Verbose bool `json:"verbose"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1-65535, got %d", c.Port)
	}

	if _, err := ParseHashScheme(c.HashScheme.String()); err != nil {
		return err
	}

	switch c.PersistenceType {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if c.DataDir == "" {
			return fmt.Errorf("data dir is required for badger persistence")
		}
	case PersistenceTypeRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("redis address is required for redis persistence")
		}
	default:
		return fmt.Errorf("unsupported persistence type: %s", c.PersistenceType)
	}

	if err := c.Attestor.Validate(); err != nil {
		return fmt.Errorf("invalid attestor config: %w", err)
	}

	return nil
}
