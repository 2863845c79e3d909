package solana

import (
	"context"
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	// GetTransactions resolves full transaction bodies for a batch of
	// signatures. Entries the provider cannot resolve are nil, not errors.
	// Some providers reject batched requests outright; those surface an
	// error containing "batch requests are not supported".
	GetTransactions(
		ctx context.Context,
		signatures []solana.Signature,
		opts *rpc.GetTransactionOpts,
	) ([]*rpc.GetTransactionResult, error)
}

// failureKind classifies an upstream RPC error for the retry loop.
type failureKind int

const (
	// failureRateLimit: back off once, then rotate to a healthier endpoint.
	failureRateLimit failureKind = iota
	// failureRotate: transport timeouts and batch-unsupported responses;
	// rotate immediately, the same endpoint will not recover mid-request.
	failureRotate
	// failurePermanent: malformed responses, unsupported methods; retrying
	// cannot help, propagate to the caller.
	failurePermanent
)

// classifyFailure buckets an RPC error by how the retry loop should react.
// Provider errors are only distinguishable by message text, so this mirrors
// the string matching providers actually emit.
func classifyFailure(err error) failureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureRotate
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "Too Many Requests"):
		return failureRateLimit
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "batch requests are not supported"),
		strings.Contains(msg, "Batch requests are not supported"):
		return failureRotate
	default:
		return failurePermanent
	}
}
