package privval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/keyring"
	"github.com/tendermint/kms/libs/log"
	"github.com/tendermint/kms/types"
)

// State is the position of a request in the signing pipeline.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateCanonicalized
	StateGuardChecked
	StateSigned
	StateCommitted
	StateReturned

	// StateRejectedInvalid: the message failed validation. Nothing changed.
	StateRejectedInvalid
	// StateRejectedDoubleSign: the slot is not above the high-water-mark.
	StateRejectedDoubleSign
	// StateRejectedProviderError: the provider failed or timed out. The
	// slot may be retried.
	StateRejectedProviderError
	// StateCommitFailed: the high-water-mark could not be read or
	// persisted. Any signature was discarded.
	StateCommitFailed
	// StateAborted: the caller gave up before the guard approved the slot.
	StateAborted
)

var stateNames = [...]string{
	StateReceived:              "received",
	StateValidated:             "validated",
	StateCanonicalized:         "canonicalized",
	StateGuardChecked:          "guard_checked",
	StateSigned:                "signed",
	StateCommitted:             "committed",
	StateReturned:              "returned",
	StateRejectedInvalid:       "rejected_invalid",
	StateRejectedDoubleSign:    "rejected_double_sign",
	StateRejectedProviderError: "rejected_provider_error",
	StateCommitFailed:          "commit_failed",
	StateAborted:               "aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Signer produces a signature over msg with the key named keyID. An empty
// keyID selects the only key. keyring.KeyRing implements it.
type Signer interface {
	Sign(ctx context.Context, keyID string, msg []byte) ([]byte, error)
}

// KMS signs consensus messages, refusing any that would double sign.
type KMS struct {
	logger  log.Logger
	guard   *Guard
	signer  Signer
	metrics *Metrics

	signTimeout   time.Duration
	commitTimeout time.Duration
}

// NewKMS wires a pipeline. Only the timeouts of cfg are used; the guard
// has already been built from the rest.
func NewKMS(logger log.Logger, cfg *config.DoubleSignConfig, guard *Guard, signer Signer, metrics *Metrics) *KMS {
	return &KMS{
		logger:        logger,
		guard:         guard,
		signer:        signer,
		metrics:       metrics,
		signTimeout:   cfg.SignTimeout,
		commitTimeout: cfg.CommitTimeout,
	}
}

// Guard returns the guard used by the pipeline.
func (k *KMS) Guard() *Guard { return k.guard }

// SignProposal signs p for chainID and sets p.Signature.
func (k *KMS) SignProposal(ctx context.Context, chainID, keyID string, p *types.Proposal) (State, error) {
	return k.Sign(ctx, chainID, keyID, &types.SignProposalRequest{Proposal: p})
}

// SignVote signs vote for chainID and sets vote.Signature.
func (k *KMS) SignVote(ctx context.Context, chainID, keyID string, vote *types.Vote) (State, error) {
	return k.Sign(ctx, chainID, keyID, &types.SignVoteRequest{Vote: vote})
}

// HandleRequest decodes a length-prefixed request envelope, signs it and
// returns the envelope with the signature filled in.
func (k *KMS) HandleRequest(ctx context.Context, chainID, keyID string, bz []byte) ([]byte, State, error) {
	msg, err := types.DecodeSignRequest(bz)
	if err != nil {
		return nil, StateRejectedInvalid, err
	}
	state, err := k.Sign(ctx, chainID, keyID, msg)
	if err != nil {
		return nil, state, err
	}
	out, err := msg.MarshalBinaryLengthPrefixed()
	if err != nil {
		return nil, state, err
	}
	return out, state, nil
}

// Sign runs msg through the pipeline. It returns StateReturned with a nil
// error once the signature is attached to msg; every other outcome returns
// the terminal state together with the reason. A double sign refusal is
// reported as StateRejectedDoubleSign and an error matching ErrDoubleSign.
func (k *KMS) Sign(ctx context.Context, chainID, keyID string, msg types.SignableMsg) (State, error) {
	logger := k.logger.With("chain_id", chainID, "request_id", uuid.NewString())

	state, err := k.sign(ctx, logger, chainID, keyID, msg)
	k.metrics.Requests.With("chain_id", chainID, "state", state.String()).Add(1)

	switch state {
	case StateReturned:
		slot := msg.Slot()
		k.metrics.LastSignedHeight.With("chain_id", chainID).Set(float64(slot.Height))
		logger.Info("signed", "slot", slot, "key_id", keyID)
	case StateRejectedDoubleSign:
		logger.Info("refused to double sign", "err", err)
	case StateRejectedInvalid:
		logger.Info("rejected invalid message", "err", err)
	default:
		logger.Error("signing failed", "state", state, "err", err)
	}
	return state, err
}

func (k *KMS) sign(
	ctx context.Context,
	logger log.Logger,
	chainID, keyID string,
	msg types.SignableMsg,
) (State, error) {
	// Received -> Validated
	if msg == nil {
		return StateRejectedInvalid, types.ErrMissingConsensusMessage
	}
	if err := config.ValidateChainID(chainID); err != nil {
		return StateRejectedInvalid, err
	}
	if err := msg.ValidateBasic(); err != nil {
		return StateRejectedInvalid, err
	}
	if msg.HasSignature() {
		return StateRejectedInvalid, types.ErrAlreadySigned
	}

	// Validated -> Canonicalized
	signBytes, err := msg.SignBytes(chainID)
	if err != nil {
		return StateRejectedInvalid, err
	}
	slot := msg.Slot()

	// Canonicalized -> GuardChecked
	res, err := k.guard.Reserve(ctx, chainID, slot)
	if err != nil {
		var (
			dserr *DoubleSignError
			perr  *PersistenceError
		)
		switch {
		case errors.As(err, &dserr):
			return StateRejectedDoubleSign, err
		case errors.As(err, &perr):
			return StateCommitFailed, err
		default:
			return StateAborted, err
		}
	}
	logger.Debug("slot reserved", "slot", slot)

	// GuardChecked -> Signed
	start := time.Now()
	sig, err := k.providerSign(ctx, keyID, signBytes)
	k.metrics.SignDuration.With("chain_id", chainID).Observe(time.Since(start).Seconds())
	if err != nil {
		res.Release()
		return StateRejectedProviderError, fmt.Errorf("signing %v: %w", slot, err)
	}

	// Signed -> Committed. From here on cancellation of ctx is ignored.
	start = time.Now()
	err = res.Commit(k.commitTimeout)
	k.metrics.CommitDuration.With("chain_id", chainID).Observe(time.Since(start).Seconds())
	if err != nil {
		for i := range sig {
			sig[i] = 0
		}
		return StateCommitFailed, err
	}

	// Committed -> Returned
	if err := msg.SetSignature(sig); err != nil {
		return StateRejectedInvalid, err
	}
	return StateReturned, nil
}

// providerSign bounds the provider call by the sign timeout even if the
// provider does not watch its context. A provider that does not answer in
// time is unavailable.
func (k *KMS) providerSign(ctx context.Context, keyID string, signBytes []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, k.signTimeout)
	defer cancel()

	type result struct {
		sig []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		sig, err := k.signer.Sign(ctx, keyID, signBytes)
		ch <- result{sig, err}
	}()

	select {
	case r := <-ch:
		return r.sig, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", keyring.ErrProviderUnavailable, ctx.Err())
	}
}
