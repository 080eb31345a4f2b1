package contracts

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrArgument = errors.New("invalid constructor argument")

// AddressParser turns an address string in any accepted encoding into an address.
type AddressParser func(s string) (common.Address, error)

// ConstructorArgs converts plan values into the Go types the constructor ABI
// expects. Addresses may be given as common.Address or as strings accepted
// by parseAddress; integers as Go integers or decimal/0x strings.
func (c CompiledContract) ConstructorArgs(values []any, parseAddress AddressParser) ([]any, error) {
	inputs := c.ABI.Constructor.Inputs
	if len(values) != len(inputs) {
		return nil, fmt.Errorf("%w: %s constructor takes %d arguments, got %d", ErrArgument, c.Name, len(inputs), len(values))
	}

	args := make([]any, len(values))
	for i, input := range inputs {
		converted, err := convert(input.Type, values[i], parseAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %d (%s %s): %w", ErrArgument, c.Name, i, input.Type.String(), input.Name, err)
		}
		args[i] = converted
	}

	return args, nil
}

func convert(t abi.Type, value any, parseAddress AddressParser) (any, error) {
	switch t.T {
	case abi.AddressTy:
		switch v := value.(type) {
		case common.Address:
			return v, nil
		case string:
			return parseAddress(v)
		}

	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(value)
		if err != nil {
			return nil, err
		}
		return fitInteger(t, n)

	case abi.BoolTy:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}

	case abi.StringTy:
		switch v := value.(type) {
		case string:
			return v, nil
		case int, int64, uint64, float64, bool:
			return fmt.Sprint(v), nil
		}

	case abi.BytesTy:
		return toBytes(value)

	case abi.FixedBytesTy:
		raw, err := toBytes(value)
		if err != nil {
			return nil, err
		}
		if len(raw) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(raw))
		}
		array := reflect.New(t.GetType()).Elem()
		reflect.Copy(array, reflect.ValueOf(raw))
		return array.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, ok := value.([]any)
		if !ok {
			break
		}
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}

		var out reflect.Value
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			out = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			converted, err := convert(*t.Elem, item, parseAddress)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(converted))
		}
		return out.Interface(), nil

	default:
		return nil, fmt.Errorf("unsupported ABI type %s", t.String())
	}

	return nil, fmt.Errorf("cannot use %T value %v", value, value)
}

// maxExactFloat is 2^53, the largest range in which float64 holds every integer.
const maxExactFloat = 1 << 53

func toBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case int:
		return big.NewInt(int64(v)), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		if math.Abs(v) > maxExactFloat {
			return nil, fmt.Errorf("%v cannot be represented exactly, quote it as a string", v)
		}
		n, _ := big.NewFloat(v).Int(nil)
		return n, nil
	case *big.Int:
		return new(big.Int).Set(v), nil
	case string:
		n, ok := new(big.Int).SetString(strings.ReplaceAll(strings.TrimSpace(v), "_", ""), 0)
		if !ok {
			return nil, fmt.Errorf("'%s' is not an integer", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot use %T value %v as an integer", value, value)
	}
}

// fitInteger range-checks n against t and returns it as the Go type go-ethereum
// packs for t: a sized Go integer up to 64 bits, *big.Int above that.
func fitInteger(t abi.Type, n *big.Int) (any, error) {
	var lower, upper *big.Int
	if t.T == abi.UintTy {
		lower = new(big.Int)
		upper = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(t.Size)), big.NewInt(1))
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		lower = new(big.Int).Neg(limit)
		upper = new(big.Int).Sub(limit, big.NewInt(1))
	}
	if n.Cmp(lower) < 0 || n.Cmp(upper) > 0 {
		return nil, fmt.Errorf("%s out of range for %s", n.String(), t.String())
	}

	goType := t.GetType()
	if goType == reflect.TypeOf(&big.Int{}) {
		return n, nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil
}

func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		raw, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not 0x-prefixed hex: %w", v, err)
		}
		return raw, nil
	case common.Hash:
		return v.Bytes(), nil
	default:
		return nil, fmt.Errorf("cannot use %T value %v as bytes", value, value)
	}
}
