package txbuilder

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	ptypes "github.com/gateway-fm/activitybot/pkg/types"
)

// StakeSelector prefixes every stake router call.
var StakeSelector = [4]byte{0xf5, 0xe5, 0x60, 0x40}

// StakeMarker is the fixed denomination marker passed with every stake.
var StakeMarker = []byte("ahelios")

// ErrBadStakeCalldata is returned by DecodeStake for malformed input.
var ErrBadStakeCalldata = errors.New("malformed stake calldata")

// stakeArgs is (address delegator, address validator, uint256 amount, bytes denom).
var stakeArgs = func() abi.Arguments {
	addressT, _ := abi.NewType("address", "", nil)
	uint256T, _ := abi.NewType("uint256", "", nil)
	bytesT, _ := abi.NewType("bytes", "", nil)
	return abi.Arguments{
		{Name: "delegator", Type: addressT},
		{Name: "validator", Type: addressT},
		{Name: "amount", Type: uint256T},
		{Name: "denom", Type: bytesT},
	}
}()

// StakeCall is the argument tuple of a stake router call.
type StakeCall struct {
	Delegator common.Address
	Validator common.Address
	Amount    *big.Int
	Marker    []byte
}

// Encode packs the call, selector included.
func (c *StakeCall) Encode() ([]byte, error) {
	packed, err := stakeArgs.Pack(c.Delegator, c.Validator, c.Amount, c.Marker)
	if err != nil {
		return nil, &EncodingError{Value: c.Amount.String(), Reason: "abi pack stake arguments", Err: err}
	}
	return append(StakeSelector[:], packed...), nil
}

// DecodeStake unpacks calldata produced by Encode.
func DecodeStake(data []byte) (*StakeCall, error) {
	if len(data) < 4 || !bytes.Equal(data[0:4], StakeSelector[:]) {
		return nil, ErrBadStakeCalldata
	}
	values, err := stakeArgs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStakeCalldata, err)
	}
	return &StakeCall{
		Delegator: values[0].(common.Address),
		Validator: values[1].(common.Address),
		Amount:    values[2].(*big.Int),
		Marker:    values[3].([]byte),
	}, nil
}

// StakeParams describes one stake deposit.
type StakeParams struct {
	Sender        string
	Validator     string
	ValidatorName string
	Router        common.Address
	Amount        string // decimal HLS
}

// BuildStake validates params and encodes the router call.
func BuildStake(p StakeParams) (*Built, error) {
	sender, err := ParseAddress("sender", p.Sender)
	if err != nil {
		return nil, err
	}
	validator, err := ParseAddress("validator", p.Validator)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(p.Amount)
	if err != nil {
		return nil, err
	}

	router := p.Router
	if router == (common.Address{}) {
		router = DefaultStakeRouter
	}

	data, err := (&StakeCall{
		Delegator: sender,
		Validator: validator,
		Amount:    amount,
		Marker:    StakeMarker,
	}).Encode()
	if err != nil {
		return nil, err
	}

	label := p.ValidatorName
	if label == "" {
		label = validator.Hex()
	}

	return &Built{
		Kind:     ptypes.OpStake,
		To:       router,
		Data:     data,
		GasLimit: RouterGasLimit,
		Amount:   amount,
		Label:    label,
	}, nil
}
