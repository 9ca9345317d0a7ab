// Package ethereum reaches the CertificateSystem smart contract over JSON-RPC.
// Reads are eth_call queries; Issue sends a signed transaction and waits for
// the mined receipt before returning.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	"certledger/pkg/platform/sentinel"
)

// ErrReadOnly is returned by mutating calls when no signing key is configured.
var ErrReadOnly = errors.New("no signing key configured")

// contract is the subset of *bind.BoundContract the ledger uses.
type contract interface {
	Call(opts *bind.CallOpts, results *[]any, method string, params ...any) error
	Transact(opts *bind.TransactOpts, method string, params ...any) (*types.Transaction, error)
	WatchLogs(opts *bind.WatchOpts, name string, query ...[]any) (chan types.Log, event.Subscription, error)
	UnpackLog(out any, event string, log types.Log) error
}

type receiptWaiter func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

type Config struct {
	RPCURL          string
	ContractAddress string
	// PrivateKey is hex encoded, with or without 0x. Empty means read-only.
	PrivateKey string
	ChainID    int64
}

type Ledger struct {
	contract contract
	auth     *bind.TransactOpts
	wait     receiptWaiter
	client   *ethclient.Client
	logger   *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// Dial connects to the node and binds the contract.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Ledger, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract ABI: %w", err)
	}

	var auth *bind.TransactOpts
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		auth, err = newTransactor(key, cfg.ChainID)
		if err != nil {
			return nil, err
		}
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, ledger.Unavailable(fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err), "dial ledger node")
	}

	bound := bind.NewBoundContract(common.HexToAddress(cfg.ContractAddress), parsed, client, client, client)
	l := newLedger(bound, auth, func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return bind.WaitMined(ctx, client, tx)
	}, opts...)
	l.client = client
	return l, nil
}

func newTransactor(key *ecdsa.PrivateKey, chainID int64) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	return auth, nil
}

func newLedger(c contract, auth *bind.TransactOpts, wait receiptWaiter, opts ...Option) *Ledger {
	l := &Ledger{contract: c, auth: auth, wait: wait, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close releases the RPC connection.
func (l *Ledger) Close() {
	if l.client != nil {
		l.client.Close()
	}
}

// Health asks the node for its head block.
func (l *Ledger) Health(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	if _, err := l.client.BlockNumber(ctx); err != nil {
		return classify(err, "ledger health")
	}
	return nil
}

func (l *Ledger) Count(ctx context.Context) (uint64, error) {
	var out []any
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodCount); err != nil {
		return 0, classify(err, "count certificates")
	}
	n, err := uint256At(out, 0)
	if err != nil || !n.IsUint64() {
		return 0, ledger.Rejected(fmt.Errorf("unexpected %s result %v", methodCount, out), "count certificates")
	}
	return n.Uint64(), nil
}

func (l *Ledger) GetRecord(ctx context.Context, id models.CertificateID) (models.CertificateRecord, error) {
	var out []any
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodCertificate, toUint256(id)); err != nil {
		return models.CertificateRecord{}, classify(err, "get certificate")
	}
	record, err := decodeCertificate(out)
	if err != nil {
		return models.CertificateRecord{}, ledger.Rejected(err, "get certificate")
	}
	// The contract returns a zero-valued struct for ids it never stored.
	if record.ID == 0 {
		return models.CertificateRecord{}, ledger.Rejected(
			fmt.Errorf("certificate %s: %w", id, sentinel.ErrNotFound), "get certificate")
	}
	return record, nil
}

func (l *Ledger) Verify(ctx context.Context, id models.CertificateID) (bool, error) {
	var out []any
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodVerify, toUint256(id)); err != nil {
		return false, classify(err, "verify certificate")
	}
	if len(out) != 1 {
		return false, ledger.Rejected(fmt.Errorf("unexpected %s result %v", methodVerify, out), "verify certificate")
	}
	valid, ok := out[0].(bool)
	if !ok {
		return false, ledger.Rejected(fmt.Errorf("unexpected %s result %T", methodVerify, out[0]), "verify certificate")
	}
	return valid, nil
}

// Issue sends issueCertificate and blocks until the transaction is mined.
// A reverted receipt is a rejection.
func (l *Ledger) Issue(ctx context.Context, record models.CertificateRecord) error {
	if record.IssueDate < 0 {
		return ledger.Rejected(fmt.Errorf("issue date %d is before the epoch", record.IssueDate), "issue certificate")
	}
	return l.transact(ctx, "issue certificate", methodIssue,
		toUint256(record.ID),
		record.RecipientName,
		record.CourseName,
		big.NewInt(record.IssueDate),
	)
}

// Revoke sends revokeCertificate. The contract restricts it to the owner.
func (l *Ledger) Revoke(ctx context.Context, id models.CertificateID) error {
	return l.transact(ctx, "revoke certificate", methodRevoke, toUint256(id))
}

func (l *Ledger) transact(ctx context.Context, message, method string, params ...any) error {
	if l.auth == nil {
		return ledger.Rejected(fmt.Errorf("%w: %w", ErrReadOnly, sentinel.ErrInvalidState), message)
	}
	opts := *l.auth
	opts.Context = ctx

	tx, err := l.contract.Transact(&opts, method, params...)
	if err != nil {
		return classify(err, message)
	}
	l.logger.InfoContext(ctx, "ledger transaction sent",
		"method", method,
		"tx_hash", tx.Hash().Hex(),
	)

	receipt, err := l.wait(ctx, tx)
	if err != nil {
		return classify(err, message)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ledger.Rejected(fmt.Errorf("transaction %s reverted", tx.Hash().Hex()), message)
	}
	return nil
}

// Subscribe watches CertificateIssued and CertificateRevoked logs. It needs a
// node endpoint that supports subscriptions (ws:// or ipc).
func (l *Ledger) Subscribe(ctx context.Context) (<-chan ledger.Event, error) {
	watchOpts := &bind.WatchOpts{Context: ctx}
	issuedLogs, issuedSub, err := l.contract.WatchLogs(watchOpts, eventIssued)
	if err != nil {
		return nil, classify(err, "watch issued certificates")
	}
	revokedLogs, revokedSub, err := l.contract.WatchLogs(watchOpts, eventRevoked)
	if err != nil {
		issuedSub.Unsubscribe()
		return nil, classify(err, "watch revoked certificates")
	}

	out := make(chan ledger.Event, 16)
	go func() {
		defer close(out)
		defer issuedSub.Unsubscribe()
		defer revokedSub.Unsubscribe()
		for {
			var (
				ev  ledger.Event
				err error
			)
			select {
			case <-ctx.Done():
				return
			case err := <-issuedSub.Err():
				l.logSubscriptionEnd(ctx, err)
				return
			case err := <-revokedSub.Err():
				l.logSubscriptionEnd(ctx, err)
				return
			case log := <-issuedLogs:
				ev, err = l.decodeIssued(log)
			case log := <-revokedLogs:
				ev, err = l.decodeRevoked(log)
			}
			if err != nil {
				l.logger.WarnContext(ctx, "discarding undecodable ledger log", "error", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (l *Ledger) logSubscriptionEnd(ctx context.Context, err error) {
	if err != nil {
		l.logger.WarnContext(ctx, "ledger log subscription ended", "error", err)
	}
}

type issuedLog struct {
	CertificateId *big.Int
	RecipientName string
	CourseName    string
	IssueDate     *big.Int
}

type revokedLog struct {
	CertificateId *big.Int
}

func (l *Ledger) decodeIssued(log types.Log) (ledger.Event, error) {
	var out issuedLog
	if err := l.contract.UnpackLog(&out, eventIssued, log); err != nil {
		return ledger.Event{}, err
	}
	if out.CertificateId == nil || !out.CertificateId.IsUint64() || out.IssueDate == nil || !out.IssueDate.IsInt64() {
		return ledger.Event{}, fmt.Errorf("out of range values in %s log", eventIssued)
	}
	return ledger.Event{
		Kind:          ledger.EventIssued,
		ID:            models.CertificateID(out.CertificateId.Uint64()),
		RecipientName: out.RecipientName,
		CourseName:    out.CourseName,
		IssueDate:     out.IssueDate.Int64(),
	}, nil
}

func (l *Ledger) decodeRevoked(log types.Log) (ledger.Event, error) {
	var out revokedLog
	if err := l.contract.UnpackLog(&out, eventRevoked, log); err != nil {
		return ledger.Event{}, err
	}
	if out.CertificateId == nil || !out.CertificateId.IsUint64() {
		return ledger.Event{}, fmt.Errorf("out of range id in %s log", eventRevoked)
	}
	return ledger.Event{Kind: ledger.EventRevoked, ID: models.CertificateID(out.CertificateId.Uint64())}, nil
}

func toUint256(id models.CertificateID) *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}

func uint256At(out []any, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("missing output %d", i)
	}
	n, ok := out[i].(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("output %d is %T, want *big.Int", i, out[i])
	}
	return n, nil
}

// decodeCertificate converts the certificates(uint256) tuple.
func decodeCertificate(out []any) (models.CertificateRecord, error) {
	if len(out) != 5 {
		return models.CertificateRecord{}, fmt.Errorf("certificates returned %d values, want 5", len(out))
	}
	id, err := uint256At(out, 0)
	if err != nil {
		return models.CertificateRecord{}, err
	}
	issueDate, err := uint256At(out, 3)
	if err != nil {
		return models.CertificateRecord{}, err
	}
	recipient, ok1 := out[1].(string)
	course, ok2 := out[2].(string)
	valid, ok3 := out[4].(bool)
	if !ok1 || !ok2 || !ok3 {
		return models.CertificateRecord{}, fmt.Errorf("unexpected certificates tuple types %T %T %T", out[1], out[2], out[4])
	}
	if !id.IsUint64() || !issueDate.IsInt64() {
		return models.CertificateRecord{}, fmt.Errorf("certificate values out of range: id=%s issueDate=%s", id, issueDate)
	}
	return models.CertificateRecord{
		ID:            models.CertificateID(id.Uint64()),
		RecipientName: recipient,
		CourseName:    course,
		IssueDate:     issueDate.Int64(),
		IsValid:       valid,
	}, nil
}

// classify separates answers from the node (JSON-RPC errors such as reverts,
// missing contract code) from transport failures.
func classify(err error, message string) error {
	var rpcErr rpc.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ledger.Unavailable(err, message)
	case errors.Is(err, bind.ErrNoCode):
		return ledger.Rejected(err, message)
	case errors.As(err, &rpcErr):
		return ledger.Rejected(err, message)
	default:
		return ledger.Unavailable(fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err), message)
	}
}
