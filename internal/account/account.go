// Package account loads the operator's accounts and proxies and tracks nonces.
package account

import (
	"bufio"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoKeys is returned when a credential source holds no valid private key.
var ErrNoKeys = errors.New("no valid private keys found")

var privateKeyPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// Account holds an account's key and derived address. It is immutable once loaded.
type Account struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// NewAccount creates an account from a private key.
func NewAccount(privateKey *ecdsa.PrivateKey) *Account {
	return &Account{
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// NewAccountFromHex creates an account from a hex-encoded private key, with or without 0x.
func NewAccountFromHex(hexKey string) (*Account, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, err
	}
	return NewAccount(privateKey), nil
}

// RecipientOf returns addr as lowercase 0x-prefixed hex, the form the bridge
// router expects for the destination recipient string.
func RecipientOf(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// KeySet is the result of parsing a credential source.
type KeySet struct {
	Accounts []*Account
	// Invalid holds 1-based line numbers that did not hold a valid key.
	Invalid []int
}

// ParseKeys reads newline-delimited private keys. Blank lines are ignored,
// malformed lines are reported in Invalid. ErrNoKeys is returned when nothing
// valid remains.
func ParseKeys(r io.Reader) (*KeySet, error) {
	set := &KeySet{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if !privateKeyPattern.MatchString(text) {
			set.Invalid = append(set.Invalid, line)
			continue
		}
		acc, err := NewAccountFromHex(text)
		if err != nil {
			set.Invalid = append(set.Invalid, line)
			continue
		}
		set.Accounts = append(set.Accounts, acc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}
	if len(set.Accounts) == 0 {
		return set, ErrNoKeys
	}
	return set, nil
}

// LoadKeys reads private keys from path.
func LoadKeys(path string) (*KeySet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keys file: %w", err)
	}
	defer f.Close()
	return ParseKeys(f)
}

// Well-known test private keys (from Anvil/Hardhat default accounts).
var TestPrivateKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", // Account 0
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d", // Account 1
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a", // Account 2
	"7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6", // Account 3
	"47e179ec197488593b187f80a00eb0da91f1b9d0b13f8733639f19c30a34926a", // Account 4
}

// LoadTestAccounts loads the standard test accounts.
func LoadTestAccounts() ([]*Account, error) {
	accounts := make([]*Account, 0, len(TestPrivateKeys))
	for _, hexKey := range TestPrivateKeys {
		account, err := NewAccountFromHex(hexKey)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}
