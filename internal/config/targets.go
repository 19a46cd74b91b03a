package config

// Destination is a chain the bridge router can send to.
type Destination struct {
	ChainID uint64
	Name    string
}

// Validator is a staking target.
type Validator struct {
	Name    string
	Address string
}

// Destinations are the bridge targets, shuffled per account.
var Destinations = []Destination{
	{ChainID: 11155111, Name: "Sepolia"},
	{ChainID: 43113, Name: "Fuji"},
	{ChainID: 97, Name: "BSC Testnet"},
	{ChainID: 80002, Name: "Amoy"},
}

// Validators are the stake targets, shuffled per account.
var Validators = []Validator{
	{Name: "helios-hedge", Address: "0x007a1123a54cdd9ba35ad2012db086b9d8350a5f"},
	{Name: "helios-supra", Address: "0x882f8a95409c127f0de7ba83b4dfa0096c3d8d79"},
}
