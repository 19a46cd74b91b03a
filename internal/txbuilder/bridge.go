package txbuilder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/activitybot/internal/account"
	ptypes "github.com/gateway-fm/activitybot/pkg/types"
)

// BridgeSelector prefixes every bridge router call.
var BridgeSelector = [4]byte{0x7a, 0xe4, 0xa8, 0xff}

const (
	// bridgeHeadWords is the number of fixed words before the recipient bytes.
	bridgeHeadWords = 6
	// bridgeRecipientOffset is where the recipient string starts, relative to the
	// argument block: right after the five head words.
	bridgeRecipientOffset = 5 * 32
)

// BridgeGasParam is the fixed fee parameter passed to the router (1 gwei).
var BridgeGasParam = big.NewInt(1_000_000_000)

// ErrBadBridgeCalldata is returned by DecodeBridge for malformed input.
var ErrBadBridgeCalldata = errors.New("malformed bridge calldata")

// BridgeCall is the argument tuple of a bridge router call. Recipient is the
// ASCII form of the destination address.
//
// Layout after the selector, one 32-byte word each:
//
//	0 destination chain id
//	1 offset of the recipient string (0xa0)
//	2 token address
//	3 amount (wei)
//	4 gas parameter
//	5 recipient length
//	6.. recipient bytes, zero-filled up to one word but otherwise unpadded
//
// A 0x-prefixed address recipient is 42 raw bytes, so the calldata is 238
// bytes long.
type BridgeCall struct {
	DestChainID uint64
	Token       common.Address
	Amount      *big.Int
	GasParam    *big.Int
	Recipient   string
}

// Encode packs the call, selector included.
func (c *BridgeCall) Encode() []byte {
	recipient := []byte(c.Recipient)
	tail := max(len(recipient), 32)

	data := make([]byte, 4+bridgeHeadWords*32+tail)
	copy(data[0:4], BridgeSelector[:])
	args := data[4:]

	new(big.Int).SetUint64(c.DestChainID).FillBytes(word(args, 0))
	big.NewInt(bridgeRecipientOffset).FillBytes(word(args, 1))
	copy(word(args, 2)[12:], c.Token.Bytes())
	c.Amount.FillBytes(word(args, 3))
	c.GasParam.FillBytes(word(args, 4))
	big.NewInt(int64(len(recipient))).FillBytes(word(args, 5))
	copy(args[bridgeHeadWords*32:], recipient)

	return data
}

// DecodeBridge unpacks calldata produced by Encode.
func DecodeBridge(data []byte) (*BridgeCall, error) {
	if len(data) < 4+bridgeHeadWords*32 || [4]byte(data[0:4]) != BridgeSelector {
		return nil, ErrBadBridgeCalldata
	}
	args := data[4:]

	chainID := new(big.Int).SetBytes(word(args, 0))
	if !chainID.IsUint64() {
		return nil, fmt.Errorf("%w: chain id overflows uint64", ErrBadBridgeCalldata)
	}
	if offset := new(big.Int).SetBytes(word(args, 1)); offset.Cmp(big.NewInt(bridgeRecipientOffset)) != 0 {
		return nil, fmt.Errorf("%w: recipient offset %s", ErrBadBridgeCalldata, offset)
	}
	length := new(big.Int).SetBytes(word(args, 5))
	if !length.IsInt64() || int64(len(args)-bridgeHeadWords*32) < length.Int64() {
		return nil, fmt.Errorf("%w: recipient length %s", ErrBadBridgeCalldata, length)
	}
	start := bridgeHeadWords * 32

	return &BridgeCall{
		DestChainID: chainID.Uint64(),
		Token:       common.BytesToAddress(word(args, 2)),
		Amount:      new(big.Int).SetBytes(word(args, 3)),
		GasParam:    new(big.Int).SetBytes(word(args, 4)),
		Recipient:   string(args[start : start+int(length.Int64())]),
	}, nil
}

// BridgeParams describes one bridge transfer. The recipient on the destination
// chain is the sender's own address.
type BridgeParams struct {
	Sender      string
	Token       string
	Router      common.Address
	DestChainID uint64
	DestName    string
	Amount      string // decimal HLS
}

// BuildBridge validates params and encodes the router call.
func BuildBridge(p BridgeParams) (*Built, error) {
	sender, err := ParseAddress("sender", p.Sender)
	if err != nil {
		return nil, err
	}
	token, err := ParseAddress("token", p.Token)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(p.Amount)
	if err != nil {
		return nil, err
	}

	router := p.Router
	if router == (common.Address{}) {
		router = DefaultBridgeRouter
	}

	call := &BridgeCall{
		DestChainID: p.DestChainID,
		Token:       token,
		Amount:      amount,
		GasParam:    BridgeGasParam,
		Recipient:   account.RecipientOf(sender),
	}

	label := p.DestName
	if label == "" {
		label = fmt.Sprintf("chain %d", p.DestChainID)
	}

	return &Built{
		Kind:     ptypes.OpBridge,
		To:       router,
		Data:     call.Encode(),
		GasLimit: RouterGasLimit,
		Amount:   amount,
		Label:    label,
	}, nil
}
