package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/solvency-labs/por-go/pkg/client"
	"github.com/solvency-labs/por-go/pkg/config"
	"github.com/solvency-labs/por-go/pkg/service"
	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/types"
)

func main() {
	app := &cli.App{
		Name:  "porctl",
		Usage: "Client for a proof-of-reserves server",
		Description: `Talks to a running por-server: publish balance snapshots, fetch
root commitments and inclusion proofs, and verify account balances
locally against a trusted root.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "Base URL of the por-server",
			},
			&cli.StringFlag{
				Name:  "hash-scheme",
				Value: string(config.HashSchemeKeccak),
				Usage: fmt.Sprintf("Hash scheme for local verification: %s", config.SupportedHashSchemesString()),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "snapshot",
				Usage: "Publish a snapshot from a balances JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON file with [{\"id\": ..., \"balance\": ...}, ...]",
						Required: true,
					},
				},
				Action: runSnapshot,
			},
			{
				Name:   "root",
				Usage:  "Fetch a root commitment (latest by default)",
				Flags:  []cli.Flag{snapshotIDFlag()},
				Action: runRoot,
			},
			{
				Name:  "prove",
				Usage: "Fetch an inclusion proof for an account",
				Flags: []cli.Flag{
					snapshotIDFlag(),
					&cli.StringFlag{
						Name:     "account-id",
						Usage:    "Account ID to prove",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Write the proof response to a file instead of stdout",
					},
				},
				Action: runProve,
			},
			{
				Name:  "verify",
				Usage: "Verify a saved proof against a trusted root, locally",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "proof-file",
						Usage:    "File with a previously fetched proof response",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:     "root-amount",
						Usage:    "Trusted total liabilities",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "root-digest",
						Usage:    "Trusted root digest (0x-prefixed hex)",
						Required: true,
					},
				},
				Action: runVerify,
			},
			{
				Name:   "attestation",
				Usage:  "Fetch the custodian's signature over a root",
				Flags:  []cli.Flag{snapshotIDFlag()},
				Action: runAttestation,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func snapshotIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "snapshot-id",
		Usage: "Snapshot ID (defaults to the latest published snapshot)",
	}
}

func newClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server"))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runSnapshot(c *cli.Context) error {
	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read balances file: %w", err)
	}

	var accounts []types.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return fmt.Errorf("failed to parse balances file: %w", err)
	}

	resp, err := newClient(c).CreateSnapshot(c.Context, accounts)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runRoot(c *cli.Context) error {
	resp, err := newClient(c).FetchRoot(c.Context, c.String("snapshot-id"))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runProve(c *cli.Context) error {
	resp, err := newClient(c).FetchProof(c.Context, c.String("snapshot-id"), c.String("account-id"))
	if err != nil {
		return err
	}

	if out := c.String("out"); out != "" {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o600); err != nil {
			return fmt.Errorf("failed to write proof file: %w", err)
		}
		fmt.Printf("Proof for position %d written to %s\n", resp.Position, out)
		return nil
	}

	return printJSON(resp)
}

func runVerify(c *cli.Context) error {
	data, err := os.ReadFile(c.String("proof-file"))
	if err != nil {
		return fmt.Errorf("failed to read proof file: %w", err)
	}

	var proofResp types.ProofResponse
	if err := json.Unmarshal(data, &proofResp); err != nil {
		return fmt.Errorf("failed to parse proof file: %w", err)
	}
	if proofResp.Proof == nil {
		return fmt.Errorf("proof file contains no proof")
	}

	hashScheme, err := config.ParseHashScheme(c.String("hash-scheme"))
	if err != nil {
		return err
	}
	committer, err := service.CommitterFor(hashScheme)
	if err != nil {
		return err
	}

	rootDigest, err := types.DecodeDigest(c.String("root-digest"))
	if err != nil {
		return err
	}
	trustedRoot := sumtree.Commitment{
		Amount: c.Uint64("root-amount"),
		Digest: rootDigest,
	}

	if proofResp.Proof.Verify(committer, proofResp.Balance, trustedRoot) {
		fmt.Printf("VALID: balance %d at position %d is included in root %s (total %d)\n",
			proofResp.Balance, proofResp.Position, c.String("root-digest"), trustedRoot.Amount)
		return nil
	}

	return fmt.Errorf("INVALID: proof does not verify against the given root")
}

func runAttestation(c *cli.Context) error {
	att, err := newClient(c).FetchAttestation(c.Context, c.String("snapshot-id"))
	if err != nil {
		return err
	}
	return printJSON(att)
}
