package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	internalaws "github.com/solvency-labs/por-go/internal/aws"
	"github.com/solvency-labs/por-go/pkg/attestor"
	"github.com/solvency-labs/por-go/pkg/config"
	"github.com/solvency-labs/por-go/pkg/logger"
	"github.com/solvency-labs/por-go/pkg/persistence"
	"github.com/solvency-labs/por-go/pkg/persistence/badger"
	"github.com/solvency-labs/por-go/pkg/persistence/memory"
	"github.com/solvency-labs/por-go/pkg/persistence/redis"
	"github.com/solvency-labs/por-go/pkg/service"
)

func main() {
	app := &cli.App{
		Name:  "por-server",
		Usage: "Proof-of-reserves liabilities server",
		Description: `Publishes Merkle sum tree commitments over custodial account balances.

The server freezes balance snapshots, publishes the root commitment
(total liabilities plus digest), serves per-account inclusion proofs,
and optionally signs published roots so auditors can pin them.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvPORPort},
			},
			&cli.StringFlag{
				Name:    "persistence",
				Value:   string(config.PersistenceTypeMemory),
				Usage:   "Snapshot storage backend (memory, badger, redis)",
				EnvVars: []string{config.EnvPORPersistenceType},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Data directory for the badger backend",
				EnvVars: []string{config.EnvPORDataDir},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address (host:port) for the redis backend",
				EnvVars: []string{config.EnvPORRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password for the redis backend",
				EnvVars: []string{config.EnvPORRedisPassword},
			},
			&cli.StringFlag{
				Name:    "hash-scheme",
				Value:   string(config.HashSchemeKeccak),
				Usage:   fmt.Sprintf("Commitment hash scheme: %s", config.SupportedHashSchemesString()),
				EnvVars: []string{config.EnvPORHashScheme},
			},
			&cli.StringFlag{
				Name:    "attestor-scheme",
				Value:   string(config.AttestorSchemeNone),
				Usage:   "Root attestation scheme (none, bls, jwt, awskms)",
				EnvVars: []string{config.EnvPORAttestorScheme},
			},
			&cli.StringFlag{
				Name:    "attestor-key",
				Usage:   "Hex-encoded signing seed for the bls and jwt schemes",
				EnvVars: []string{config.EnvPORAttestorKey},
			},
			&cli.StringFlag{
				Name:    "kms-key-id",
				Usage:   "AWS KMS key ID or alias for the awskms scheme",
				EnvVars: []string{config.EnvPORAttestorKMSKeyID},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region override for the awskms scheme",
				EnvVars: []string{config.EnvPORAWSRegion},
			},
			&cli.StringFlag{
				Name:    "issuer",
				Usage:   "Issuer claim stamped on jwt attestations",
				EnvVars: []string{config.EnvPORIssuer},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvPORVerbose},
			},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg, err := parseServerConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := buildPersistence(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}
	defer func() { _ = store.Close() }()

	att, err := buildAttestor(c.Context, &cfg.Attestor, l)
	if err != nil {
		return fmt.Errorf("failed to initialize attestor: %w", err)
	}

	svc, err := service.NewService(store, cfg.HashScheme, att, l)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server := service.NewServer(svc, cfg.Port, service.DefaultRateLimit)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Proof-of-reserves server running",
		"port", cfg.Port,
		"persistence", cfg.PersistenceType,
		"hash_scheme", cfg.HashScheme,
		"attestor", cfg.Attestor.Scheme)
	l.Sugar().Infow("Available endpoints",
		"snapshots", "POST /snapshots",
		"root", "GET /root",
		"proof", "GET /proof",
		"verify", "POST /verify",
		"attestation", "GET /attestation")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	l.Sugar().Infow("Shutting down", "signal", sig.String())
	return server.Stop()
}

func parseServerConfig(c *cli.Context) (*config.ServerConfig, error) {
	persistenceType, err := config.ParsePersistenceType(c.String("persistence"))
	if err != nil {
		return nil, err
	}

	hashScheme, err := config.ParseHashScheme(c.String("hash-scheme"))
	if err != nil {
		return nil, err
	}

	attestorScheme, err := config.ParseAttestorScheme(c.String("attestor-scheme"))
	if err != nil {
		return nil, err
	}

	return &config.ServerConfig{
		Port:            c.Int("port"),
		PersistenceType: persistenceType,
		DataDir:         c.String("data-dir"),
		RedisAddress:    c.String("redis-address"),
		RedisPassword:   c.String("redis-password"),
		HashScheme:      hashScheme,
		Attestor: config.AttestorConfig{
			Scheme:     attestorScheme,
			SigningKey: c.String("attestor-key"),
			KMSKeyID:   c.String("kms-key-id"),
			AWSRegion:  c.String("aws-region"),
			Issuer:     c.String("issuer"),
		},
		Verbose: c.Bool("verbose"),
	}, nil
}

func buildPersistence(cfg *config.ServerConfig, l *zap.Logger) (persistence.ISnapshotPersistence, error) {
	switch cfg.PersistenceType {
	case config.PersistenceTypeMemory:
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceTypeBadger:
		return badger.NewBadgerPersistence(cfg.DataDir, l)
	case config.PersistenceTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.PersistenceType)
	}
}

func buildAttestor(ctx context.Context, cfg *config.AttestorConfig, l *zap.Logger) (attestor.Attestor, error) {
	switch cfg.Scheme {
	case config.AttestorSchemeNone:
		return nil, nil
	case config.AttestorSchemeBLS:
		return attestor.NewBLSAttestorFromHex(cfg.SigningKey)
	case config.AttestorSchemeJWT:
		return attestor.NewJWTAttestorFromHex(cfg.SigningKey, cfg.Issuer)
	case config.AttestorSchemeAWSKMS:
		awsCfg, err := internalaws.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		identity, err := internalaws.GetCallerIdentity(ctx, awsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve AWS caller identity: %w", err)
		}
		l.Sugar().Infow("Using AWS KMS attestor", "caller_arn", *identity.Arn, "key_id", cfg.KMSKeyID)
		return attestor.NewKMSAttestor(ctx, awsCfg, cfg.KMSKeyID, l)
	default:
		return nil, fmt.Errorf("unsupported attestor scheme: %s", cfg.Scheme)
	}
}
