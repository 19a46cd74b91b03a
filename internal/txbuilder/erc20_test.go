package txbuilder

import (
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	ptypes "github.com/gateway-fm/activitybot/pkg/types"
)

func TestERC20Encoders(t *testing.T) {
	owner := common.HexToAddress(testSender)
	spender := DefaultBridgeRouter

	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{
			name: "balanceOf",
			got:  EncodeBalanceOf(owner),
			want: "70a08231000000000000000000000000f39fd6e51aad88f6f4ce6ab8827279cfffb92266",
		},
		{
			name: "allowance",
			got:  EncodeAllowance(owner, spender),
			want: "dd62ed3e000000000000000000000000f39fd6e51aad88f6f4ce6ab8827279cfffb92266" +
				"0000000000000000000000000000000000000000000000000000000000000900",
		},
		{
			name: "approve",
			got:  EncodeApprove(spender, big.NewInt(1_000_000)),
			want: "095ea7b30000000000000000000000000000000000000000000000000000000000000900" +
				"00000000000000000000000000000000000000000000000000000000000f4240",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hex.EncodeToString(tt.got); got != tt.want {
				t.Errorf("%s =\n%s\nwant\n%s", tt.name, got, tt.want)
			}
		})
	}
}

func TestDecodeUint256(t *testing.T) {
	ret := make([]byte, 32)
	big.NewInt(42).FillBytes(ret)

	got, err := DecodeUint256(ret)
	if err != nil || got.Int64() != 42 {
		t.Errorf("DecodeUint256() = %v, %v; want 42", got, err)
	}

	if _, err := DecodeUint256([]byte{1}); !errors.Is(err, ErrShortReturn) {
		t.Errorf("DecodeUint256(short) error = %v, want ErrShortReturn", err)
	}
}

func TestBuildApprove(t *testing.T) {
	token := common.HexToAddress(testToken)
	built := BuildApprove(token, DefaultBridgeRouter, big.NewInt(5))

	if built.Kind != ptypes.OpApprove || built.To != token || built.GasLimit != ApproveGasLimit {
		t.Errorf("BuildApprove() = %+v", built)
	}
}

func TestNewCallTx(t *testing.T) {
	built := BuildApprove(common.HexToAddress(testToken), DefaultBridgeRouter, big.NewInt(5))
	chainID := big.NewInt(42000)

	dyn := NewCallTx(chainID, 7, built, big.NewInt(1), big.NewInt(3), false)
	if dyn.Type() != types.DynamicFeeTxType {
		t.Errorf("Type() = %d, want dynamic fee", dyn.Type())
	}
	if dyn.Nonce() != 7 || dyn.Gas() != ApproveGasLimit || dyn.Value().Sign() != 0 {
		t.Errorf("unexpected tx fields: nonce=%d gas=%d value=%s", dyn.Nonce(), dyn.Gas(), dyn.Value())
	}
	if dyn.GasTipCap().Int64() != 1 || dyn.GasFeeCap().Int64() != 3 {
		t.Errorf("fees = %s/%s, want 1/3", dyn.GasTipCap(), dyn.GasFeeCap())
	}

	legacy := NewCallTx(chainID, 7, built, big.NewInt(1), big.NewInt(3), true)
	if legacy.Type() != types.LegacyTxType || legacy.GasPrice().Int64() != 3 {
		t.Errorf("legacy tx type=%d gasPrice=%s", legacy.Type(), legacy.GasPrice())
	}
}
