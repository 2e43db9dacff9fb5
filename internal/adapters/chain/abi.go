package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract methods the bot calls
const (
	MethodGetLoanStatus = "get_loan_status"
	MethodLiquidateLoan = "liquidate_loan"
)

// LoanContractABI is the subset of the lending contract used by the bot:
// one view, one mutation and the custom errors a liquidation can revert with.
const LoanContractABI = `[
	{"type":"function","name":"get_loan_status","stateMutability":"view",
	 "inputs":[{"name":"loan_id","type":"uint64"}],
	 "outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"liquidate_loan","stateMutability":"nonpayable",
	 "inputs":[{"name":"loan_id","type":"uint64"}],
	 "outputs":[]},
	{"type":"error","name":"CannotLiquidate","inputs":[]},
	{"type":"error","name":"EInvalidStatus","inputs":[]},
	{"type":"error","name":"ELoanNotFound","inputs":[]},
	{"type":"error","name":"EUnauthorized","inputs":[]}
]`

func parseLoanABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(LoanContractABI))
}
