package litecoin

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/ltcsuite/ltcd/btcec"
	"github.com/ltcsuite/ltcd/chaincfg"
	"github.com/ltcsuite/ltcd/chaincfg/chainhash"
	"github.com/ltcsuite/ltcd/ltcjson"
	"github.com/ltcsuite/ltcd/rpcclient"
	"github.com/ltcsuite/ltcd/txscript"
	"github.com/ltcsuite/ltcd/wire"
	"github.com/ltcsuite/ltcutil"

	"github.com/breez/swapresolver/chainadapter"
	"github.com/breez/swapresolver/logging"
)

var log btclog.Logger = logging.NewSubLogger("LTCA")

// Config bundles the parameters needed to stand up an Adapter, mirroring
// chainadapter/bitcoin.Config for ltcd's RPC/address types.
type Config struct {
	Chain            chainadapter.ChainID
	RPCConfig        *rpcclient.ConnConfig
	NetParams        *chaincfg.Params
	ConfirmDepth     uint64
	SubmissionKeyWIF string
	RetryPolicy      chainadapter.RetryPolicy
	MinFeeRate       float64
	// MaxConcurrentSubmissions bounds how many Submit calls run at once
	// against this adapter's RPC connection (§5). Defaults to
	// chainadapter.DefaultMaxConcurrentSubmissions when zero.
	MaxConcurrentSubmissions int
}

type htlcEntry struct {
	orderHash      [32]byte
	htlcID         string
	hashlock       [32]byte
	timelock       int64
	receiverPubKey []byte
	senderPubKey   []byte
	script         []byte
	amount         int64
}

// Adapter implements chainadapter.ChainAdapter for Litecoin, the
// chainadapter/bitcoin.Adapter counterpart bound to ltcd's types.
type Adapter struct {
	chain        chainadapter.ChainID
	client       *rpcclient.Client
	netParams    *chaincfg.Params
	confirmDepth uint64
	retryPolicy  chainadapter.RetryPolicy
	minFeeRate   float64

	privKey  *btcec.PrivateKey
	pubKey   []byte
	selfAddr ltcutil.Address

	limiter *chainadapter.SubmitLimiter

	feeMu    sync.RWMutex
	feeQuote chainadapter.FeeQuote

	watchMu         sync.Mutex
	watchByAddr     map[string]*htlcEntry
	watchByOutpoint map[wire.OutPoint]*htlcEntry
}

// NewAdapter mirrors bitcoin.NewAdapter for ltcd/ltcutil.
func NewAdapter(cfg Config) (*Adapter, error) {
	wif, err := ltcutil.DecodeWIF(cfg.SubmissionKeyWIF)
	if err != nil {
		return nil, fmt.Errorf("litecoin: invalid submission key: %v", err)
	}

	pubKey := wif.PrivKey.PubKey().SerializeCompressed()
	pkHash := ltcutil.Hash160(pubKey)
	selfAddr, err := ltcutil.NewAddressWitnessPubKeyHash(pkHash, cfg.NetParams)
	if err != nil {
		return nil, fmt.Errorf("litecoin: deriving self address: %v", err)
	}

	client, err := rpcclient.New(cfg.RPCConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("litecoin: rpc dial: %v", err)
	}

	policy := cfg.RetryPolicy
	if policy.Attempts == 0 {
		policy = chainadapter.DefaultRetryPolicy()
	}

	return &Adapter{
		chain:           cfg.Chain,
		client:          client,
		netParams:       cfg.NetParams,
		confirmDepth:    cfg.ConfirmDepth,
		retryPolicy:     policy,
		minFeeRate:      cfg.MinFeeRate,
		privKey:         wif.PrivKey,
		pubKey:          pubKey,
		selfAddr:        selfAddr,
		limiter:         chainadapter.NewSubmitLimiter(cfg.MaxConcurrentSubmissions),
		watchByAddr:     make(map[string]*htlcEntry),
		watchByOutpoint: make(map[wire.OutPoint]*htlcEntry),
	}, nil
}

// ID implements chainadapter.ChainAdapter.
func (a *Adapter) ID() chainadapter.ChainID { return a.chain }

// TipHeight implements chainadapter.ChainAdapter.
func (a *Adapter) TipHeight(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	height, err := a.client.GetBlockCount()
	if err != nil {
		return 0, chainadapter.NewAdapterError(chainadapter.ErrTransient, a.chain, "TipHeight", err)
	}
	return uint64(height), nil
}

// ConfirmedHeight implements chainadapter.ChainAdapter.
func (a *Adapter) ConfirmedHeight(ctx context.Context) (uint64, error) {
	tip, err := a.TipHeight(ctx)
	if err != nil {
		return 0, err
	}
	if tip < a.confirmDepth {
		return 0, nil
	}
	return tip - a.confirmDepth, nil
}

// QueryEvents implements chainadapter.ChainAdapter, mirroring
// bitcoin.Adapter.QueryEvents against ltcjson's block/tx shapes.
func (a *Adapter) QueryEvents(ctx context.Context, fromHeight, toHeight uint64) ([]chainadapter.Event, error) {
	if toHeight < fromHeight {
		return nil, nil
	}
	if toHeight-fromHeight+1 > chainadapter.MaxBlocksPerQuery {
		return nil, chainadapter.NewAdapterError(chainadapter.ErrInvariantBreach, a.chain,
			"QueryEvents", fmt.Errorf("window %d exceeds MaxBlocksPerQuery", toHeight-fromHeight+1))
	}

	var events []chainadapter.Event
	for height := fromHeight; height <= toHeight; height++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hash, err := a.client.GetBlockHash(int64(height))
		if err != nil {
			return nil, chainadapter.NewAdapterError(chainadapter.ErrTransient, a.chain, "GetBlockHash", err)
		}
		block, err := a.client.GetBlockVerboseTx(hash)
		if err != nil {
			return nil, chainadapter.NewAdapterError(chainadapter.ErrDecode, a.chain, "GetBlockVerboseTx", err)
		}

		for _, tx := range block.RawTx {
			evs, err := a.scanTx(height, tx)
			if err != nil {
				return nil, chainadapter.NewAdapterError(chainadapter.ErrDecode, a.chain, "scanTx", err)
			}
			events = append(events, evs...)
		}
	}
	return events, nil
}

func (a *Adapter) scanTx(height uint64, tx ltcjson.TxRawResult) ([]chainadapter.Event, error) {
	var events []chainadapter.Event

	txHash, err := chainhash.NewHashFromStr(tx.Txid)
	if err != nil {
		return nil, err
	}

	for i, out := range tx.Vout {
		pkScript, err := hex.DecodeString(out.ScriptPubKey.Hex)
		if err != nil {
			continue
		}

		if payload, ok := decodeAnchorScript(pkScript); ok {
			events = append(events, chainadapter.Event{
				Kind:        payload.Kind.toEventKind(),
				Chain:       a.chain,
				BlockHeight: height,
				TxID:        tx.Txid,
				LogIndex:    uint32(i),
				Payload: chainadapter.EventPayload{
					OrderHash: payload.OrderHash,
					Hashlock:  payload.Hashlock,
					Timelock:  payload.Timelock,
				},
			})
			continue
		}

		a.watchMu.Lock()
		entry, ok := a.watchByAddr[pkScriptAddrKey(pkScript)]
		if ok {
			op := wire.OutPoint{Hash: *txHash, Index: uint32(i)}
			a.watchByOutpoint[op] = entry
		}
		a.watchMu.Unlock()
		if !ok {
			continue
		}

		events = append(events, chainadapter.Event{
			Kind:        chainadapter.EventHtlcCreated,
			Chain:       a.chain,
			BlockHeight: height,
			TxID:        tx.Txid,
			LogIndex:    uint32(i),
			Payload: chainadapter.EventPayload{
				OrderHash: entry.orderHash,
				HtlcID:    entry.htlcID,
				Sender:    hex.EncodeToString(entry.senderPubKey),
				Receiver:  hex.EncodeToString(entry.receiverPubKey),
				Amount:    uint64(entry.amount),
				Hashlock:  entry.hashlock,
				Timelock:  entry.timelock,
			},
		})
	}

	for i, in := range tx.Vin {
		if in.Txid == "" || len(in.Witness) < 2 {
			continue
		}
		prevHash, err := chainhash.NewHashFromStr(in.Txid)
		if err != nil {
			continue
		}
		op := wire.OutPoint{Hash: *prevHash, Index: in.Vout}

		a.watchMu.Lock()
		entry, ok := a.watchByOutpoint[op]
		a.watchMu.Unlock()
		if !ok {
			continue
		}

		preimage, err := hex.DecodeString(in.Witness[1])
		if err != nil {
			continue
		}

		kind := chainadapter.EventHtlcRefunded
		payload := chainadapter.EventPayload{
			OrderHash: entry.orderHash,
			HtlcID:    entry.htlcID,
			Hashlock:  entry.hashlock,
			Timelock:  entry.timelock,
			Amount:    uint64(entry.amount),
		}
		if len(preimage) == 32 {
			kind = chainadapter.EventHtlcClaimed
			payload.HasSecret = true
			copy(payload.Secret[:], preimage)
		}

		events = append(events, chainadapter.Event{
			Kind:        kind,
			Chain:       a.chain,
			BlockHeight: height,
			TxID:        tx.Txid,
			LogIndex:    uint32(i),
			Payload:     payload,
		})
	}

	return events, nil
}

// Submit implements chainadapter.ChainAdapter. It bounds concurrent
// submissions via a.limiter (§5) before retrying through WithRetry,
// mirroring chainadapter/bitcoin.Adapter.Submit.
func (a *Adapter) Submit(ctx context.Context, action chainadapter.Action) (string, error) {
	return a.limiter.Run(ctx, a.chain, action.Kind.String(), func(ctx context.Context) (string, error) {
		return chainadapter.WithRetry(ctx, a.chain, action.Kind.String(), a.retryPolicy,
			func(ctx context.Context) (string, error) {
				switch action.Kind {
				case chainadapter.ActionCreateHtlc, chainadapter.ActionFulfillIncomingOrder:
					return a.submitFunding(ctx, action)
				case chainadapter.ActionClaim:
					return a.submitSpend(ctx, action, true)
				case chainadapter.ActionRefund:
					return a.submitSpend(ctx, action, false)
				case chainadapter.ActionProcessIncomingOrder:
					return a.submitAnchor(ctx, action, anchorOrderCreated)
				default:
					return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain,
						"Submit", fmt.Errorf("unsupported action kind %v", action.Kind))
				}
			})
	})
}

func (a *Adapter) submitFunding(ctx context.Context, action chainadapter.Action) (string, error) {
	receiverPubKey, err := hex.DecodeString(action.Receiver)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrDecode, a.chain, "submitFunding", err)
	}

	script, err := genHtlcScript(scriptParams{
		ReceiverPubKey: receiverPubKey,
		SenderPubKey:   a.pubKey,
		Hashlock:       action.Hashlock[:],
		Timelock:       action.Timelock,
	})
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrInvariantBreach, a.chain, "submitFunding", err)
	}
	htlcAddr, err := p2wshAddress(script, a.netParams)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitFunding", err)
	}

	utxos, err := a.client.ListUnspentMinMaxAddresses(1, 9999999, []ltcutil.Address{a.selfAddr})
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrTransient, a.chain, "ListUnspent", err)
	}
	input, inputValue, err := selectUtxo(utxos, int64(action.Amount))
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrCapacity, a.chain, "submitFunding", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(input, nil, nil))

	htlcScript, err := txscript.PayToAddrScript(htlcAddr)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitFunding", err)
	}
	tx.AddTxOut(wire.NewTxOut(int64(action.Amount), htlcScript))

	weight := 4*tx.SerializeSizeStripped() + witnessInputSize(false)
	fee := int64(float64(weight) * a.currentFeeRatePerByte())
	change := inputValue - int64(action.Amount) - fee
	if change < 0 {
		return "", chainadapter.NewAdapterError(chainadapter.ErrCapacity, a.chain, "submitFunding",
			fmt.Errorf("insufficient funds: have %d need %d", inputValue, int64(action.Amount)+fee))
	}
	if change > 0 {
		changeScript, err := txscript.PayToAddrScript(a.selfAddr)
		if err != nil {
			return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitFunding", err)
		}
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}

	if err := a.signSelfInput(tx, 0, inputValue); err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitFunding", err)
	}

	txHash, err := a.client.SendRawTransaction(tx, false)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrTransient, a.chain, "SendRawTransaction", err)
	}

	entry := &htlcEntry{
		orderHash:      action.OrderHash,
		htlcID:         action.HtlcID,
		hashlock:       action.Hashlock,
		timelock:       action.Timelock,
		receiverPubKey: receiverPubKey,
		senderPubKey:   a.pubKey,
		script:         script,
		amount:         int64(action.Amount),
	}
	a.watchMu.Lock()
	a.watchByAddr[pkScriptAddrKey(htlcScript)] = entry
	a.watchByOutpoint[wire.OutPoint{Hash: *txHash, Index: 0}] = entry
	a.watchMu.Unlock()

	return txHash.String(), nil
}

func (a *Adapter) submitSpend(ctx context.Context, action chainadapter.Action, isClaim bool) (string, error) {
	op, entry, err := a.findHtlcOutpoint(action.OrderHash, action.HtlcID)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrInvariantBreach, a.chain, "submitSpend", err)
	}

	if isClaim {
		if err := validateHashlock(action.Secret[:], entry.hashlock[:]); err != nil {
			return "", chainadapter.NewAdapterError(chainadapter.ErrInvariantBreach, a.chain, "submitSpend", err)
		}
	}

	destPubKey := entry.senderPubKey
	anchorKind := anchorOrderRefunded
	if isClaim {
		destPubKey = entry.receiverPubKey
		anchorKind = anchorOrderFulfilled
	}
	pkHash := ltcutil.Hash160(destPubKey)
	destAddr, err := ltcutil.NewAddressWitnessPubKeyHash(pkHash, a.netParams)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitSpend", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	txIn := wire.NewTxIn(op, nil, nil)
	if !isClaim {
		txIn.Sequence = 0
		tx.LockTime = uint32(entry.timelock)
	}
	tx.AddTxIn(txIn)

	destScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitSpend", err)
	}
	tx.AddTxOut(wire.NewTxOut(entry.amount, destScript))

	anchorScript, err := buildAnchorScript(anchorPayload{Kind: anchorKind, OrderHash: entry.orderHash})
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitSpend", err)
	}
	tx.AddTxOut(wire.NewTxOut(0, anchorScript))

	weight := 4*tx.SerializeSizeStripped() + witnessInputSize(isClaim)
	fee := int64(float64(weight) * a.currentFeeRatePerByte())
	tx.TxOut[0].Value = entry.amount - fee
	if tx.TxOut[0].Value <= 0 {
		return "", chainadapter.NewAdapterError(chainadapter.ErrCapacity, a.chain, "submitSpend",
			fmt.Errorf("htlc amount %d too small to cover fee %d", entry.amount, fee))
	}

	sigHashes := txscript.NewTxSigHashes(tx)
	sig, err := txscript.RawTxInWitnessSignature(tx, sigHashes, 0, entry.amount, entry.script, txscript.SigHashAll, a.privKey)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitSpend", err)
	}
	if isClaim {
		tx.TxIn[0].Witness = claimWitness(sig, action.Secret[:], entry.script)
	} else {
		tx.TxIn[0].Witness = refundWitness(sig, entry.script)
	}

	txHash, err := a.client.SendRawTransaction(tx, false)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrTransient, a.chain, "SendRawTransaction", err)
	}
	return txHash.String(), nil
}

func (a *Adapter) submitAnchor(ctx context.Context, action chainadapter.Action, kind anchorKind) (string, error) {
	utxos, err := a.client.ListUnspentMinMaxAddresses(1, 9999999, []ltcutil.Address{a.selfAddr})
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrTransient, a.chain, "ListUnspent", err)
	}
	input, inputValue, err := selectUtxo(utxos, 0)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrCapacity, a.chain, "submitAnchor", err)
	}

	anchorScript, err := buildAnchorScript(anchorPayload{
		Kind:      kind,
		OrderHash: action.OrderHash,
		Hashlock:  action.Hashlock,
		Timelock:  action.Timelock,
	})
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitAnchor", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(input, nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, anchorScript))

	weight := 4*tx.SerializeSizeStripped() + witnessInputSize(false)
	fee := int64(float64(weight) * a.currentFeeRatePerByte())
	change := inputValue - fee
	if change <= 0 {
		return "", chainadapter.NewAdapterError(chainadapter.ErrCapacity, a.chain, "submitAnchor",
			fmt.Errorf("insufficient funds to cover anchor fee %d", fee))
	}
	changeScript, err := txscript.PayToAddrScript(a.selfAddr)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitAnchor", err)
	}
	tx.AddTxOut(wire.NewTxOut(change, changeScript))

	if err := a.signSelfInput(tx, 0, inputValue); err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrFatal, a.chain, "submitAnchor", err)
	}

	txHash, err := a.client.SendRawTransaction(tx, false)
	if err != nil {
		return "", chainadapter.NewAdapterError(chainadapter.ErrTransient, a.chain, "SendRawTransaction", err)
	}
	return txHash.String(), nil
}

func (a *Adapter) signSelfInput(tx *wire.MsgTx, idx int, value int64) error {
	scriptCode, err := p2wpkhScriptCode(a.pubKey, a.netParams)
	if err != nil {
		return err
	}
	sigHashes := txscript.NewTxSigHashes(tx)
	sig, err := txscript.RawTxInWitnessSignature(tx, sigHashes, idx, value, scriptCode, txscript.SigHashAll, a.privKey)
	if err != nil {
		return err
	}
	tx.TxIn[idx].Witness = wire.TxWitness{sig, a.pubKey}
	return nil
}

// WaitForReceipt implements chainadapter.ChainAdapter, mirroring
// bitcoin.Adapter.WaitForReceipt.
func (a *Adapter) WaitForReceipt(ctx context.Context, txID string, timeout time.Duration) (*chainadapter.Receipt, error) {
	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return nil, chainadapter.NewAdapterError(chainadapter.ErrDecode, a.chain, "WaitForReceipt", err)
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			tx, err := a.client.GetRawTransactionVerbose(hash)
			if err == nil && tx.Confirmations > 0 {
				var blockHeight uint64
				if blockHash, err := chainhash.NewHashFromStr(tx.BlockHash); err == nil {
					if header, err := a.client.GetBlockVerbose(blockHash); err == nil {
						blockHeight = uint64(header.Height)
					}
				}
				return &chainadapter.Receipt{
					Status:      chainadapter.ReceiptConfirmed,
					BlockHeight: blockHeight,
				}, nil
			}
			if time.Now().After(deadline) {
				return &chainadapter.Receipt{Status: chainadapter.ReceiptUnknown}, nil
			}
		}
	}
}

// CurrentFeeQuote implements chainadapter.ChainAdapter.
func (a *Adapter) CurrentFeeQuote() chainadapter.FeeQuote {
	a.feeMu.RLock()
	defer a.feeMu.RUnlock()
	return a.feeQuote
}

// RefreshFeeQuote implements chainadapter.ChainAdapter.
func (a *Adapter) RefreshFeeQuote(ctx context.Context) error {
	rate, err := a.client.EstimateFee(6)
	if err != nil {
		log.Warnf("fee estimate failed, retaining prior quote: %v", err)
		return nil
	}
	feePerByte := rate * 1e8 / 1000
	if feePerByte < a.minFeeRate {
		feePerByte = a.minFeeRate
	}

	a.feeMu.Lock()
	a.feeQuote = chainadapter.FeeQuote{FeeRate: feePerByte, UpdatedAt: time.Now()}
	a.feeMu.Unlock()
	return nil
}

func (a *Adapter) currentFeeRatePerByte() float64 {
	q := a.CurrentFeeQuote()
	if q.FeeRate <= 0 {
		return a.minFeeRate
	}
	return q.FeeRate
}

func (a *Adapter) findHtlcOutpoint(orderHash [32]byte, htlcID string) (*wire.OutPoint, *htlcEntry, error) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for op, entry := range a.watchByOutpoint {
		if entry.orderHash == orderHash && entry.htlcID == htlcID {
			opCopy := op
			return &opCopy, entry, nil
		}
	}
	return nil, nil, fmt.Errorf("litecoin: no known funding outpoint for htlc %s", htlcID)
}

// Shutdown releases the adapter's RPC connection.
func (a *Adapter) Shutdown() {
	a.client.Shutdown()
	a.client.WaitForShutdown()
}
