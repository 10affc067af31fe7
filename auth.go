// Package walletauth issues and checks bearer tokens for wallet holders. A
// caller proves control of an ed25519 address either by signing its user id
// directly or by signing a transaction whose memo is the user id; the
// resulting token is an encrypted (address, uid) pair that can be checked
// without any server-side state.
package walletauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hossein1376/walletauth/internal/identity"
	"github.com/hossein1376/walletauth/token"
)

// BalanceChecker reports the lamport balance of an address. Implementations
// may perform network I/O and must honour ctx.
type BalanceChecker interface {
	Balance(ctx context.Context, addr identity.Address) (uint64, error)
}

type BalanceCheckerFunc func(ctx context.Context, addr identity.Address) (uint64, error)

func (f BalanceCheckerFunc) Balance(ctx context.Context, addr identity.Address) (uint64, error) {
	return f(ctx, addr)
}

// Service runs the issuance and verification pipelines. It is immutable after
// construction and safe for concurrent use.
type Service struct {
	deriver    identity.Deriver
	codec      *token.Codec
	balance    BalanceChecker
	minBalance uint64
	logger     *slog.Logger
	observer   Observer
}

// Observer is notified of pipeline outcomes. It must be safe for concurrent
// use.
type Observer interface {
	Issued(method string)
	Rejected(stage string, kind Kind)
	Checked(ok bool)
}

type nopObserver struct{}

func (nopObserver) Issued(string)         {}
func (nopObserver) Rejected(string, Kind) {}
func (nopObserver) Checked(bool)          {}

type Option func(*Service)

// WithMinBalance enables the balance gate. A zero threshold disables it.
func WithMinBalance(checker BalanceChecker, lamports uint64) Option {
	return func(s *Service) {
		s.balance = checker
		s.minBalance = lamports
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

func NewService(salt string, codec *token.Codec, opts ...Option) *Service {
	s := &Service{
		deriver:  identity.NewDeriver(salt),
		codec:    codec,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) UserID(address string) (string, error) {
	addr, err := parseAddress(address)
	if err != nil {
		s.observer.Rejected("user_id", KindOf(err))
		return "", err
	}
	return s.deriver.Derive(addr), nil
}

// IssueRequest is a token request. Proof selects the verification protocol.
type IssueRequest struct {
	Address string
	UID     string
	Proof   Proof
}

type Issued struct {
	Token  string
	Result *ProofResult
}

// Issue walks a request through address validation, uid derivation, the
// optional balance gate and proof verification, and mints a token only if
// every step passed.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	issued, err := s.issue(ctx, req)
	if err != nil {
		s.observer.Rejected("issue", KindOf(err))
		return nil, err
	}
	s.observer.Issued(issued.Result.Method)
	return issued, nil
}

func (s *Service) issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	if req.Proof == nil {
		return nil, newError(KindInternal, "", errors.New("no proof supplied"))
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		return nil, err
	}
	if uid := s.deriver.Derive(addr); req.UID != uid {
		return nil, newError(KindUIDMismatch, "invalid uid", nil)
	}
	if err := s.checkBalance(ctx, addr); err != nil {
		return nil, err
	}

	res, err := req.Proof.Verify(ctx, addr, req.UID)
	if err != nil {
		e := asError(err)
		attrs := []any{
			slog.String("address", addr.String()),
			slog.String("kind", string(e.Kind)),
			slog.Any("err", err),
		}
		if res != nil {
			attrs = append(attrs, slog.Any("signers", res.Signers), slog.String("memo", res.Memo))
		}
		s.logger.InfoContext(ctx, "proof rejected", attrs...)
		return nil, e
	}

	tok, err := s.codec.Encode(addr.String(), req.UID)
	if err != nil {
		return nil, newError(KindInternal, "", fmt.Errorf("encoding token: %w", err))
	}
	s.logger.InfoContext(ctx,
		"token issued",
		slog.String("address", addr.String()),
		slog.String("method", res.Method),
		slog.Any("signers", res.Signers),
	)

	return &Issued{Token: tok, Result: res}, nil
}

func (s *Service) checkBalance(ctx context.Context, addr identity.Address) error {
	if s.minBalance == 0 || s.balance == nil {
		return nil
	}
	balance, err := s.balance.Balance(ctx, addr)
	if err != nil {
		return newError(KindDependencyUnavailable, "balance check failed", err)
	}
	s.logger.DebugContext(ctx,
		"account balance",
		slog.String("address", addr.String()),
		slog.Uint64("lamports", balance),
	)
	if balance < s.minBalance {
		return newError(
			KindInsufficientBalance,
			fmt.Sprintf("account balance must be at least %d lamports", s.minBalance),
			nil,
		)
	}
	return nil
}

type Identity struct {
	Address string `json:"address"`
	UID     string `json:"uid"`
}

// Check opens a token and re-derives its uid. Every failure is reported as
// KindInvalidToken; the wrapped cause is only for logs.
func (s *Service) Check(ctx context.Context, tok string) (*Identity, error) {
	id, err := s.check(tok)
	s.observer.Checked(err == nil)
	if err != nil {
		s.logger.DebugContext(ctx, "token rejected", slog.Any("err", err))
		return nil, newError(KindInvalidToken, "", err)
	}
	return id, nil
}

func (s *Service) check(tok string) (*Identity, error) {
	address, uid, err := s.codec.Decode(tok)
	if err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	addr, err := identity.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("address in token: %w", err)
	}
	if s.deriver.Derive(addr) != uid {
		return nil, errors.New("uid in token does not match address")
	}
	return &Identity{Address: addr.String(), UID: uid}, nil
}

func parseAddress(address string) (identity.Address, error) {
	addr, err := identity.ParseAddress(address)
	if err != nil {
		return identity.Address{}, newError(KindInvalidAddress, detailOf(err), err)
	}
	return addr, nil
}

func detailOf(err error) string {
	for _, sentinel := range []error{
		identity.ErrEmptyAddress,
		identity.ErrMalformedAddress,
		identity.ErrAddressLength,
		identity.ErrNotOnCurve,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
