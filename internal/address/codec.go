package address

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Format names a network address convention.
type Format string

const (
	FormatEVM  Format = "evm"
	FormatTron Format = "tron"

	tronPrefix       byte = 0x41
	tronHexLength         = 2 + 2*common.AddressLength
	tronPayloadBytes      = 1 + common.AddressLength
	checksumBytes         = 4
)

var ErrInvalidAddress = errors.New("invalid address")

type (
	// Codec converts 20-byte account addresses between the network-native hex
	// form and the checksummed form shown to operators. Both encodings are pure
	// functions of the address.
	Codec interface {
		Format() Format
		Hex(addr common.Address) string
		Display(addr common.Address) string
		Parse(s string) (common.Address, error)
	}

	// ContractAddress is an address together with both of its encodings.
	ContractAddress struct {
		Address common.Address `json:"raw"`
		Hex     string         `json:"hex"`
		Display string         `json:"display"`
	}

	evmCodec  struct{}
	tronCodec struct{}
)

// NewCodec returns the codec for format.
func NewCodec(format Format) (Codec, error) {
	switch format {
	case FormatEVM:
		return evmCodec{}, nil
	case FormatTron:
		return tronCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported address format '%s'", format)
	}
}

// Encode derives both encodings of addr.
func Encode(codec Codec, addr common.Address) ContractAddress {
	return ContractAddress{
		Address: addr,
		Hex:     codec.Hex(addr),
		Display: codec.Display(addr),
	}
}

// Decode parses s and re-derives both encodings, so the result is canonical
// regardless of which encoding s was written in.
func Decode(codec Codec, s string) (ContractAddress, error) {
	addr, err := codec.Parse(s)
	if err != nil {
		return ContractAddress{}, err
	}

	return Encode(codec, addr), nil
}

func (evmCodec) Format() Format { return FormatEVM }

func (evmCodec) Hex(addr common.Address) string {
	return "0x" + hex.EncodeToString(addr.Bytes())
}

// Display returns the EIP-55 mixed-case checksum form.
func (evmCodec) Display(addr common.Address) string {
	return addr.Hex()
}

func (evmCodec) Parse(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: '%s'", ErrInvalidAddress, s)
	}

	return common.HexToAddress(s), nil
}

func (tronCodec) Format() Format { return FormatTron }

func (tronCodec) Hex(addr common.Address) string {
	return hex.EncodeToString(tronPayload(addr))
}

// Display returns the Base58Check form (version byte 0x41, double SHA-256 checksum).
func (tronCodec) Display(addr common.Address) string {
	payload := tronPayload(addr)
	return base58.Encode(append(payload, checksum(payload)...))
}

// Parse accepts Base58Check ("T..."), 41-prefixed hex and 0x-prefixed hex.
func (tronCodec) Parse(s string) (common.Address, error) {
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		if !common.IsHexAddress(s) {
			return common.Address{}, fmt.Errorf("%w: '%s'", ErrInvalidAddress, s)
		}
		return common.HexToAddress(s), nil

	case len(s) == tronHexLength && strings.HasPrefix(s, "41"):
		raw, err := hex.DecodeString(s)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: '%s': %w", ErrInvalidAddress, s, err)
		}
		return common.BytesToAddress(raw[1:]), nil

	default:
		return parseBase58Check(s)
	}
}

func parseBase58Check(s string) (common.Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: '%s': %w", ErrInvalidAddress, s, err)
	}

	if len(raw) != tronPayloadBytes+checksumBytes {
		return common.Address{}, fmt.Errorf("%w: '%s' decodes to %d bytes", ErrInvalidAddress, s, len(raw))
	}

	payload, sum := raw[:tronPayloadBytes], raw[tronPayloadBytes:]
	if !bytes.Equal(checksum(payload), sum) {
		return common.Address{}, fmt.Errorf("%w: '%s' has a bad checksum", ErrInvalidAddress, s)
	}
	if payload[0] != tronPrefix {
		return common.Address{}, fmt.Errorf("%w: '%s' has version byte 0x%02x", ErrInvalidAddress, s, payload[0])
	}

	return common.BytesToAddress(payload[1:]), nil
}

func tronPayload(addr common.Address) []byte {
	payload := make([]byte, 0, tronPayloadBytes+checksumBytes)
	payload = append(payload, tronPrefix)
	return append(payload, addr.Bytes()...)
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumBytes]
}
