package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/logger"
)

const publishTimeout = 5 * time.Second

// TransferOptions bounds how long and how often a transfer is attempted.
type TransferOptions struct {
	// Timeout bounds a single attempt, lock waits included. Zero disables it.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a retryable store conflict.
	MaxRetries int
	// RetryBackoff is the pause before the first retry; it doubles on each further retry.
	RetryBackoff time.Duration
}

// DefaultTransferOptions returns the options used when none are configured.
func DefaultTransferOptions() TransferOptions {
	return TransferOptions{
		Timeout:      5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 20 * time.Millisecond,
	}
}

// TransferService handles the business logic for money transfers.
// It coordinates between repositories and ensures transactional consistency.
type TransferService struct {
	accountRepo     AccountRepository
	transactionRepo TransactionRepository
	txManager       TransactionManager
	// Optional event publisher to emit domain events (e.g. transaction committed)
	eventPublisher EventPublisher
	opts           TransferOptions
	publishes      sync.WaitGroup
}

// NewTransferService creates a new instance of TransferService.
// Pass nil for eventPublisher if no events should be emitted.
func NewTransferService(
	accountRepo AccountRepository,
	transactionRepo TransactionRepository,
	txManager TransactionManager,
	eventPublisher EventPublisher,
	opts TransferOptions,
) *TransferService {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &TransferService{
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		txManager:       txManager,
		eventPublisher:  eventPublisher,
		opts:            opts,
	}
}

// Transfer moves req.Amount from req.FromAccount to req.ToAccount.
//
// Checks run in a fixed order so the reported failure is deterministic:
// the amount must be positive, both accounts must exist, they must differ,
// and the sender must hold at least the amount.
//
// The debit, the credit and the transaction record commit together inside one
// store transaction. Both account rows are locked lowest id first, so two
// transfers in opposite directions between the same pair cannot deadlock, and
// balances are re-read under the lock before being checked.
//
// When req.IdempotencyKey is set, a repeated request returns the originally
// committed transaction without moving funds again.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !validMoney(req.Amount) {
		return nil, ErrAmountPrecision
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if req.IdempotencyKey != "" {
		existing, err := s.transactionRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("check idempotency: %w", err)
		}
		if existing != nil {
			return replay(existing, req)
		}
	}

	var (
		txn *Transaction
		err error
	)
	backoff := s.opts.RetryBackoff
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff); err != nil {
				return nil, NewError(KindUnavailable, "Transfer cancelled", err)
			}
			backoff *= 2
		}

		txn, err = s.attempt(ctx, req)
		if err == nil {
			break
		}

		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			existing, lookupErr := s.transactionRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr != nil {
				return nil, fmt.Errorf("check idempotency: %w", lookupErr)
			}
			if existing == nil {
				return nil, err
			}
			return replay(existing, req)
		}

		if !IsRetryable(err) {
			logger.Info("transfer rejected", logger.Fields{
				"fromAccount": req.FromAccount,
				"toAccount":   req.ToAccount,
				"amount":      req.Amount.String(),
				"kind":        string(KindOf(err)),
				"reason":      err.Error(),
			})
			return nil, err
		}

		logger.Warn("transfer attempt conflicted", logger.Fields{
			"fromAccount": req.FromAccount,
			"toAccount":   req.ToAccount,
			"attempt":     attempt + 1,
			"reason":      err.Error(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusy, err)
	}

	logger.Info("transfer committed", logger.Fields{
		"transactionId": txn.ID,
		"fromAccount":   txn.FromAccount,
		"toAccount":     txn.ToAccount,
		"amount":        txn.Amount.String(),
	})

	// Publishing happens after commit and never changes the outcome.
	if s.eventPublisher != nil {
		s.publishes.Add(1)
		go func(t Transaction) {
			defer s.publishes.Done()
			pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := s.eventPublisher.PublishTransactionCommitted(pubCtx, &t); err != nil {
				logger.Error("failed to publish transaction committed event", err, logger.Fields{
					"transactionId": t.ID,
				})
			}
		}(*txn)
	}

	return txn, nil
}

// Wait blocks until every committed-transaction event started so far has been published or has failed.
func (s *TransferService) Wait() {
	s.publishes.Wait()
}

// attempt runs one atomic unit of the transfer.
func (s *TransferService) attempt(ctx context.Context, req TransferRequest) (*Transaction, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var txn *Transaction
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		sender, recipient, err := s.lockPair(txCtx, req.FromAccount, req.ToAccount)
		if err != nil {
			return err
		}

		if sender.ID == recipient.ID {
			return ErrSameAccount
		}

		if err := sender.Debit(req.Amount); err != nil {
			return err
		}
		if err := recipient.Credit(req.Amount); err != nil {
			return err
		}

		if err := s.accountRepo.UpdateBalance(txCtx, sender.ID, sender.Balance); err != nil {
			return fmt.Errorf("update sender account: %w", err)
		}
		if err := s.accountRepo.UpdateBalance(txCtx, recipient.ID, recipient.Balance); err != nil {
			return fmt.Errorf("update recipient account: %w", err)
		}

		txn = &Transaction{
			FromAccount:    sender.ID,
			ToAccount:      recipient.ID,
			Amount:         req.Amount,
			IdempotencyKey: req.IdempotencyKey,
		}
		if err := s.transactionRepo.Create(txCtx, txn); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && KindOf(err) == KindInternal {
			return nil, NewError(KindUnavailable, "Transfer timed out", err)
		}
		return nil, err
	}
	return txn, nil
}

// lockPair locks both accounts lowest id first and returns them as (sender, recipient).
// A self-transfer locks its single row once and returns it twice.
func (s *TransferService) lockPair(ctx context.Context, fromID, toID int64) (*Account, *Account, error) {
	if fromID == toID {
		account, err := s.accountRepo.Lock(ctx, fromID)
		if err != nil {
			return nil, nil, err
		}
		return account, account, nil
	}

	firstID, secondID := fromID, toID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}

	first, err := s.accountRepo.Lock(ctx, firstID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock account %d: %w", firstID, err)
	}
	second, err := s.accountRepo.Lock(ctx, secondID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock account %d: %w", secondID, err)
	}

	if first.ID == fromID {
		return first, second, nil
	}
	return second, first, nil
}

func replay(existing *Transaction, req TransferRequest) (*Transaction, error) {
	if !existing.Matches(req) {
		return nil, ErrIdempotencyMismatch
	}
	logger.Info("transfer replayed for idempotency key", logger.Fields{
		"transactionId": existing.ID,
	})
	return existing, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
