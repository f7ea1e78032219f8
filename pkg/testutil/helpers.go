package testutil

import (
	"fmt"
	"math/rand"

	"github.com/solvency-labs/por-go/pkg/types"
)

// GenerateAccounts creates n deterministic test accounts. The same n always
// produces the same IDs and balances, so expected roots are stable across
// runs.
func GenerateAccounts(n int) []types.Account {
	rng := rand.New(rand.NewSource(int64(n)))

	accounts := make([]types.Account, n)
	for i := range accounts {
		accounts[i] = types.Account{
			ID:      fmt.Sprintf("acct-%04d", i),
			Balance: uint64(rng.Intn(1_000_000)) + 1,
		}
	}
	return accounts
}

// TotalBalance sums account balances, the expected root amount
func TotalBalance(accounts []types.Account) uint64 {
	var total uint64
	for _, account := range accounts {
		total += account.Balance
	}
	return total
}
