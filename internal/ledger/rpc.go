package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

const DefaultTimeout = 10 * time.Second

var (
	ErrRPC = errors.New("rpc error")
)

// Client is a read-only view of a ledger node, safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	node       *rpc.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithTimeout bounds every call. The HTTP client is copied, never mutated.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		h := *c.httpClient
		h.Timeout = d
		c.httpClient = &h
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.node = rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(
		endpoint, &jsonrpc.RPCClientOpts{HTTPClient: c.httpClient},
	))
	return c
}

// Balance returns the lamport balance of key at confirmed commitment.
func (c *Client) Balance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := c.node.GetBalance(ctx, key, rpc.CommitmentConfirmed)
	c.log("getBalance", start, err)
	if err != nil {
		return 0, fmt.Errorf("%w: getBalance: %w", ErrRPC, err)
	}
	if out == nil {
		return 0, fmt.Errorf("%w: getBalance: empty result", ErrRPC)
	}
	return out.Value, nil
}

// LatestBlockhash returns a recent blockhash to build transactions against.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.node.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	c.log("getLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("%w: getLatestBlockhash: %w", ErrRPC, err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("%w: getLatestBlockhash: empty result", ErrRPC)
	}
	return out.Value.Blockhash, nil
}

func (c *Client) log(method string, start time.Time, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.String("endpoint", c.endpoint),
		slog.Duration("took", time.Since(start)),
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		attrs = append(attrs, slog.Int("code", rpcErr.Code))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
	}
	c.logger.Debug("rpc call", attrs...)
}
