package txbuilder

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ptypes "github.com/gateway-fm/activitybot/pkg/types"
)

// ERC20 function selectors
var (
	// balanceOf(address) = 0x70a08231
	erc20BalanceOfSelector = common.FromHex("0x70a08231")
	// allowance(address,address) = 0xdd62ed3e
	erc20AllowanceSelector = common.FromHex("0xdd62ed3e")
	// approve(address,uint256) = 0x095ea7b3
	erc20ApproveSelector = common.FromHex("0x095ea7b3")
)

// ErrShortReturn is returned when a call result is shorter than one word.
var ErrShortReturn = errors.New("call returned less than 32 bytes")

// EncodeBalanceOf encodes a balanceOf(address) call.
func EncodeBalanceOf(owner common.Address) []byte {
	data := make([]byte, 4+32)
	copy(data[0:4], erc20BalanceOfSelector)
	copy(data[4+12:4+32], owner.Bytes())
	return data
}

// EncodeAllowance encodes an allowance(address,address) call.
func EncodeAllowance(owner, spender common.Address) []byte {
	data := make([]byte, 4+32+32)
	copy(data[0:4], erc20AllowanceSelector)
	copy(data[4+12:4+32], owner.Bytes())
	copy(data[4+32+12:4+64], spender.Bytes())
	return data
}

// EncodeApprove encodes an approve(address,uint256) call.
func EncodeApprove(spender common.Address, amount *big.Int) []byte {
	if amount.Sign() < 0 {
		panic("amount must be non-negative")
	}
	data := make([]byte, 4+32+32)
	copy(data[0:4], erc20ApproveSelector)
	copy(data[4+12:4+32], spender.Bytes())
	amount.FillBytes(data[4+32 : 4+64])
	return data
}

// DecodeUint256 reads the first word of a call result.
func DecodeUint256(ret []byte) (*big.Int, error) {
	if len(ret) < 32 {
		return nil, ErrShortReturn
	}
	return new(big.Int).SetBytes(ret[:32]), nil
}

// BuildApprove builds an approval of amount for spender on token.
func BuildApprove(token, spender common.Address, amount *big.Int) *Built {
	return &Built{
		Kind:     ptypes.OpApprove,
		To:       token,
		Data:     EncodeApprove(spender, amount),
		GasLimit: ApproveGasLimit,
		Amount:   new(big.Int).Set(amount),
		Label:    spender.Hex(),
	}
}
