package governance

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Proposal is one governance action batch: parallel targets, values, and
// calldatas plus the human-readable description that seeds every derived id.
type Proposal struct {
	Targets     []common.Address
	Values      []*big.Int
	Calldatas   [][]byte
	Description string
}

func (p Proposal) Validate() error {
	if len(p.Targets) == 0 {
		return fmt.Errorf("proposal has no targets")
	}
	if len(p.Targets) != len(p.Values) || len(p.Targets) != len(p.Calldatas) {
		return fmt.Errorf("proposal arrays must be parallel: %d targets, %d values, %d calldatas",
			len(p.Targets), len(p.Values), len(p.Calldatas))
	}
	return nil
}

var (
	addressSliceType, _ = abi.NewType("address[]", "", nil)
	uint256SliceType, _ = abi.NewType("uint256[]", "", nil)
	bytesSliceType, _   = abi.NewType("bytes[]", "", nil)
	addressType, _      = abi.NewType("address", "", nil)
	uint256Type, _      = abi.NewType("uint256", "", nil)
	bytesType, _        = abi.NewType("bytes", "", nil)
	bytes32Type, _      = abi.NewType("bytes32", "", nil)
)

// DescriptionHash is keccak256 of the raw description bytes.
func DescriptionHash(description string) common.Hash {
	return crypto.Keccak256Hash([]byte(description))
}

// ProposalID computes the governor's proposal id:
// uint256(keccak256(abi.encode(targets, values, calldatas, descriptionHash))).
func ProposalID(p Proposal) (*big.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	args := abi.Arguments{
		{Type: addressSliceType},
		{Type: uint256SliceType},
		{Type: bytesSliceType},
		{Type: bytes32Type},
	}
	packed, err := args.Pack(p.Targets, p.Values, p.Calldatas, DescriptionHash(p.Description))
	if err != nil {
		return nil, fmt.Errorf("encode proposal: %w", err)
	}
	return new(big.Int).SetBytes(crypto.Keccak256(packed)), nil
}

// TimelockSalt derives the salt a timelock-backed governor uses when queuing:
// the governor address left-aligned in 32 bytes, XORed with the description
// hash.
func TimelockSalt(governor common.Address, descriptionHash common.Hash) common.Hash {
	var salt common.Hash
	copy(salt[:20], governor[:])
	for i := range salt {
		salt[i] ^= descriptionHash[i]
	}
	return salt
}

// OperationID computes the timelock's id for a single call:
// keccak256(abi.encode(target, value, data, predecessor, salt)).
func OperationID(target common.Address, value *big.Int, data []byte, predecessor, salt common.Hash) (common.Hash, error) {
	args := abi.Arguments{
		{Type: addressType},
		{Type: uint256Type},
		{Type: bytesType},
		{Type: bytes32Type},
		{Type: bytes32Type},
	}
	if value == nil {
		value = big.NewInt(0)
	}
	packed, err := args.Pack(target, value, data, predecessor, salt)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode operation: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// BatchOperationID computes the timelock's id for a batch:
// keccak256(abi.encode(targets, values, payloads, predecessor, salt)).
func BatchOperationID(p Proposal, predecessor, salt common.Hash) (common.Hash, error) {
	if err := p.Validate(); err != nil {
		return common.Hash{}, err
	}
	args := abi.Arguments{
		{Type: addressSliceType},
		{Type: uint256SliceType},
		{Type: bytesSliceType},
		{Type: bytes32Type},
		{Type: bytes32Type},
	}
	packed, err := args.Pack(p.Targets, p.Values, p.Calldatas, predecessor, salt)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode batch operation: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}
