package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/privascan/privascan/service/analysis"
)

// Well-known program IDs used to bucket transactions by type. The detectors
// only need a coarse transfer/swap distinction plus the raw program list.
const (
	tokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	jupiterProgramID   = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

// parseTransaction normalizes one resolved transaction into the flat shape
// the detectors consume.
func parseTransaction(wallet string, sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) (analysis.TransactionNode, error) {
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return analysis.TransactionNode{}, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx == nil {
		return analysis.TransactionNode{}, fmt.Errorf("empty transaction body")
	}

	var timestamp int64
	if result.BlockTime != nil {
		timestamp = result.BlockTime.Time().Unix()
	} else if sig.BlockTime != nil {
		timestamp = sig.BlockTime.Time().Unix()
	}

	return normalizeTransaction(wallet, tx, result.Slot, timestamp, sig.Signature), nil
}

// normalizeTransaction extracts programs and counterparties from a decoded
// transaction. wallet is the address under analysis; it is excluded from the
// counterparty list, as are the program accounts themselves.
func normalizeTransaction(wallet string, tx *solana.Transaction, slot uint64, timestamp int64, fallbackSig solana.Signature) analysis.TransactionNode {
	keys := tx.Message.AccountKeys

	programs := make([]string, 0, len(tx.Message.Instructions))
	seenPrograms := make(map[string]struct{})
	counterparties := make([]string, 0, len(keys))
	seenCounterparties := make(map[string]struct{})

	for _, ins := range tx.Message.Instructions {
		if int(ins.ProgramIDIndex) < len(keys) {
			program := keys[ins.ProgramIDIndex].String()
			if _, ok := seenPrograms[program]; !ok {
				seenPrograms[program] = struct{}{}
				programs = append(programs, program)
			}
		}
		for _, accIdx := range ins.Accounts {
			if int(accIdx) >= len(keys) {
				continue
			}
			account := keys[accIdx].String()
			if account == wallet {
				continue
			}
			if _, ok := seenPrograms[account]; ok {
				continue
			}
			if _, ok := seenCounterparties[account]; !ok {
				seenCounterparties[account] = struct{}{}
				counterparties = append(counterparties, account)
			}
		}
	}

	signature := fallbackSig.String()
	if len(tx.Signatures) > 0 {
		signature = tx.Signatures[0].String()
	}

	return analysis.TransactionNode{
		Signature:      signature,
		Timestamp:      timestamp,
		Slot:           slot,
		Type:           transactionType(programs),
		Counterparties: counterparties,
		Programs:       programs,
	}
}

// transactionType buckets a transaction by the programs it touched. Token
// program transfers win over swaps when both appear, matching how most
// aggregator swaps settle through the token program.
func transactionType(programs []string) analysis.TransactionType {
	hasTransfer := false
	hasSwap := false
	for _, p := range programs {
		switch p {
		case tokenProgramID, token2022ProgramID, solana.SystemProgramID.String():
			hasTransfer = true
		case jupiterProgramID:
			hasSwap = true
		}
	}
	switch {
	case hasTransfer:
		return analysis.TxTypeTransfer
	case hasSwap:
		return analysis.TxTypeSwap
	default:
		return analysis.TxTypeUnknown
	}
}
