// Package blockfrost implements the block.Indexer interface against the Blockfrost REST API.
//
// Blocks, addresses and transactions are read with the blockfrost-go client. Utxos carrying inline datums, the
// Babbage protocol parameters and transaction submission are not modelled by that client, so they are requested
// through the same retrying transport it is built on.
package blockfrost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	bf "github.com/blockfrost/blockfrost-go"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/tarancss/safesave/lib/block/types"
)

// Base urls per network.
var Networks = map[string]string{ //nolint:gochecknoglobals // lookup table
	"mainnet": bf.CardanoMainNet,
	"preprod": "https://cardano-preprod.blockfrost.io/api/v0",
	"preview": "https://cardano-preview.blockfrost.io/api/v0",
}

// PageSize is the maximum number of items Blockfrost returns per page.
const PageSize = 100

// maxPages bounds the utxo pagination of a single address.
const maxPages = 1000

// maxBody limits the bytes read from any response.
const maxBody = 16 << 20

// retry policy of the direct requests
const (
	retryMax     = 2
	retryWaitMin = 100 * time.Millisecond
	retryWaitMax = 2 * time.Second
)

// Blockfrost is a client of one Blockfrost network.
type Blockfrost struct {
	api       bf.APIClient
	rc        *retryablehttp.Client
	base      string
	network   string
	projectID string
	timeout   time.Duration
}

// Init returns a client for the given network using projectID for authentication. If baseURL is set it overrides the
// url derived from the network (ie. a self-hosted instance or a test server).
func Init(network, projectID, baseURL string, timeout time.Duration) (*Blockfrost, error) {
	if baseURL == "" {
		var ok bool
		if baseURL, ok = Networks[network]; !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrNetwork, network)
		}

		if projectID == "" {
			return nil, types.ErrNoProjectID
		}
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = retryMax
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Logger = nil
	// keep the last response once retries are exhausted so its error body can be decoded
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Blockfrost{
		api:       bf.NewAPIClient(bf.APIClientOptions{ProjectID: projectID, Server: baseURL}),
		rc:        rc,
		base:      baseURL,
		network:   network,
		projectID: projectID,
		timeout:   timeout,
	}, nil
}

// Network returns the network name the client was initialised with.
func (b *Blockfrost) Network() string {
	return b.network
}

// AddressUtxos returns all the unspent outputs at address, walking every page.
func (b *Blockfrost) AddressUtxos(ctx context.Context, address string) ([]types.Utxo, error) {
	var all []types.Utxo

	for page := 1; page <= maxPages; page++ {
		var utxos []types.Utxo

		path := fmt.Sprintf("/addresses/%s/utxos?count=%d&page=%d", url.PathEscape(address), PageSize, page)
		if err := b.get(ctx, path, &utxos); err != nil {
			return nil, err
		}

		all = append(all, utxos...)

		if len(utxos) < PageSize {
			break
		}
	}

	if all == nil {
		all = []types.Utxo{}
	}

	return all, nil
}

// Address returns the balance, stake address and type of address.
func (b *Blockfrost) Address(ctx context.Context, address string) (types.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	a, err := b.api.Address(ctx, address)
	if err != nil {
		return types.Address{}, sdkError(err)
	}

	res := types.Address{
		Address:      a.Address,
		StakeAddress: a.StakeAddress,
		Type:         a.Type,
		Script:       a.Script,
		Amount:       make([]types.Amount, 0, len(a.Amount)),
	}
	for _, am := range a.Amount {
		res.Amount = append(res.Amount, types.Amount{Unit: am.Unit, Quantity: am.Quantity})
	}

	return res, nil
}

// Tx returns the transaction with the given hash.
func (b *Blockfrost) Tx(ctx context.Context, hash string) (types.Tx, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	t, err := b.api.Transaction(ctx, hash)
	if err != nil {
		return types.Tx{}, sdkError(err)
	}

	res := types.Tx{
		Hash:        t.Hash,
		Block:       t.Block,
		BlockHeight: uint64(t.BlockHeight),
		Slot:        uint64(t.Slot),
		Index:       t.Index,
		Fees:        t.Fees,
		Size:        t.Size,
		OutputAmt:   make([]types.Amount, 0, len(t.OutputAmount)),
	}
	for _, am := range t.OutputAmount {
		res.OutputAmt = append(res.OutputAmt, types.Amount{Unit: am.Unit, Quantity: am.Quantity})
	}

	return res, nil
}

// LatestBlock returns the tip of the chain.
func (b *Blockfrost) LatestBlock(ctx context.Context) (types.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	blk, err := b.api.BlockLatest(ctx)
	if err != nil {
		return types.Block{}, sdkError(err)
	}

	return types.Block{
		Hash:          blk.Hash,
		Height:        uint64(blk.Height),
		Time:          int64(blk.Time),
		Slot:          uint64(blk.Slot),
		Epoch:         uint64(blk.Epoch),
		EpochSlot:     uint64(blk.EpochSlot),
		PreviousBlock: blk.PreviousBlock,
		TxCount:       blk.TxCount,
	}, nil
}

// EpochParameters returns the protocol parameters of epoch.
func (b *Blockfrost) EpochParameters(ctx context.Context, epoch uint64) (p types.Params, err error) {
	err = b.get(ctx, "/epochs/"+strconv.FormatUint(epoch, 10)+"/parameters", &p)

	return
}

// ProtocolParameters returns the parameters of the epoch of the latest block.
func (b *Blockfrost) ProtocolParameters(ctx context.Context) (types.Params, error) {
	blk, err := b.LatestBlock(ctx)
	if err != nil {
		return types.Params{}, err
	}

	return b.EpochParameters(ctx, blk.Epoch)
}

// SubmitTx sends a signed transaction in CBOR and returns its hash.
func (b *Blockfrost) SubmitTx(ctx context.Context, cbor []byte) (hash string, err error) {
	req, err := b.request(ctx, http.MethodPost, "/tx/submit", cbor)
	if err != nil {
		return
	}

	req.Header.Set("Content-Type", "application/cbor")

	err = b.do(req, &hash)

	return
}

func (b *Blockfrost) get(ctx context.Context, path string, v interface{}) error {
	req, err := b.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	return b.do(req, v)
}

func (b *Blockfrost) request(ctx context.Context, method, path string, body []byte) (*retryablehttp.Request, error) {
	var raw interface{}
	if body != nil {
		raw = body
	}

	req, err := retryablehttp.NewRequest(method, b.base+path, raw)
	if err != nil {
		return nil, fmt.Errorf("cannot create request: %w", err)
	}

	req = req.WithContext(ctx)

	if b.projectID != "" {
		req.Header.Set("project_id", b.projectID)
	}

	return req, nil
}

func (b *Blockfrost) do(req *retryablehttp.Request, v interface{}) error {
	resp, err := b.rc.Do(req)
	if resp == nil {
		return fmt.Errorf("request to indexer failed: %w", err)
	}
	defer resp.Body.Close()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if errRead != nil {
		return fmt.Errorf("cannot read indexer response: %w", errRead)
	}

	// a server error outlasting the retries comes with err set, its body still describes it
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, body)
	}

	if err != nil {
		return fmt.Errorf("request to indexer failed: %w", err)
	}

	if err = json.Unmarshal(body, v); err != nil {
		log.Debugf("Indexer replied %s to %s", body, req.URL.Path)

		return fmt.Errorf("%w: %v", types.ErrDecode, err)
	}

	return nil
}

// decodeError builds an APIError from an error body. Bodies that are not JSON keep the HTTP status text.
func decodeError(status int, body []byte) error {
	e := &types.APIError{StatusCode: status, Err: http.StatusText(status), Message: string(bytes.TrimSpace(body))}

	if gjson.ValidBytes(body) {
		r := gjson.ParseBytes(body)
		if c := r.Get("status_code"); c.Exists() {
			e.StatusCode = int(c.Int())
		}

		if s := r.Get("error"); s.Exists() {
			e.Err = s.String()
		}

		if m := r.Get("message"); m.Exists() {
			e.Message = m.String()
		}
	}

	return e
}

// sdkError maps the errors of the blockfrost-go client to the indexer errors.
func sdkError(err error) error {
	var apiErr *bf.APIError
	if !errors.As(err, &apiErr) {
		var syntaxErr *json.SyntaxError

		var typeErr *json.UnmarshalTypeError

		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %v", types.ErrDecode, err)
		}

		return fmt.Errorf("request to indexer failed: %w", err)
	}

	switch r := apiErr.Response.(type) {
	case bf.BadRequest:
		return &types.APIError{StatusCode: r.StatusCode, Err: r.Error, Message: r.Message}
	case bf.UnauthorizedError:
		return &types.APIError{StatusCode: r.StatusCode, Err: r.Error, Message: r.Message}
	case bf.NotFound:
		return &types.APIError{StatusCode: r.StatusCode, Err: r.Error, Message: r.Message}
	case bf.AutoBanned:
		return &types.APIError{StatusCode: r.StatusCode, Err: r.Error, Message: r.Message}
	case bf.OverusageLimit:
		return &types.APIError{StatusCode: r.StatusCode, Err: r.Error, Message: r.Message}
	case bf.InternalServerError:
		return &types.APIError{StatusCode: r.StatusCode, Err: r.Error, Message: r.Message}
	case string:
		return decodeError(0, []byte(r))
	}

	return fmt.Errorf("request to indexer failed: %w", err)
}
