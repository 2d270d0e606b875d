package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the three contracts the engine talks to. Only the
// methods we actually call are declared; the deployed contracts carry more.

const registryABIJSON = `[
  {"type":"function","stateMutability":"view","name":"getUserInvestments",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"tokenIds","type":"uint256[]"},{"name":"amounts","type":"uint256[]"},{"name":"authorized","type":"bool[]"}]},
  {"type":"function","stateMutability":"view","name":"positionDocument",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"document","type":"string"}]}
]`

const lendingABIJSON = `[
  {"type":"function","stateMutability":"view","name":"getUserLoans",
   "inputs":[{"name":"borrower","type":"address"}],
   "outputs":[{"name":"loanIds","type":"uint256[]"}]},
  {"type":"function","stateMutability":"view","name":"getLoanById",
   "inputs":[{"name":"loanId","type":"uint256"}],
   "outputs":[{"name":"borrower","type":"address"},{"name":"principal","type":"uint256"},{"name":"totalDebt","type":"uint256"},{"name":"durationSeconds","type":"uint256"},{"name":"startTime","type":"uint256"},{"name":"active","type":"bool"}]},
  {"type":"function","stateMutability":"view","name":"calculateInterestRate",
   "inputs":[{"name":"durationSeconds","type":"uint256"}],
   "outputs":[{"name":"rateBps","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"calculateLoanTerms",
   "inputs":[{"name":"principal","type":"uint256"},{"name":"durationSeconds","type":"uint256"}],
   "outputs":[{"name":"totalDebt","type":"uint256"},{"name":"bufferAmount","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"validateLoanCreationView",
   "inputs":[{"name":"tokenId","type":"uint256"},{"name":"durationSeconds","type":"uint256"}],
   "outputs":[{"name":"ok","type":"bool"}]},
  {"type":"function","stateMutability":"nonpayable","name":"createLoan",
   "inputs":[{"name":"tokenId","type":"uint256"},{"name":"accountId","type":"uint256"},{"name":"durationSeconds","type":"uint256"},{"name":"principal","type":"uint256"},{"name":"tokenAddress","type":"address"},{"name":"originChainId","type":"uint256"},{"name":"borrower","type":"address"}],
   "outputs":[]}
]`

const erc20ABIJSON = `[
  {"type":"function","stateMutability":"view","name":"allowance",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"remaining","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"balanceOf",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"balance","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"decimals",
   "inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","stateMutability":"view","name":"symbol",
   "inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","stateMutability":"nonpayable","name":"approve",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"ok","type":"bool"}]}
]`

var (
	registryABI = mustParseABI(registryABIJSON)
	lendingABI  = mustParseABI(lendingABIJSON)
	erc20ABI    = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("invalid contract ABI: " + err.Error())
	}
	return parsed
}
