package fee

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/vmihailenco/msgpack/v5"
)

// Amount is an integer share or asset amount that round-trips through msgpack as a
// decimal string. Integer encodings are accepted on decode.
type Amount struct {
	sdkmath.Int
}

// NewAmount wraps i.
func NewAmount(i sdkmath.Int) Amount {
	return Amount{Int: i}
}

// Value returns the amount, zero when unset.
func (a Amount) Value() sdkmath.Int {
	if a.Int.IsNil() {
		return sdkmath.ZeroInt()
	}
	return a.Int
}

var (
	_ msgpack.CustomEncoder = Amount{}
	_ msgpack.CustomDecoder = (*Amount)(nil)
)

func (a Amount) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(a.Value().String())
}

func (a *Amount) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return err
	}
	var i sdkmath.Int
	switch x := v.(type) {
	case string:
		var ok bool
		i, ok = sdkmath.NewIntFromString(x)
		if !ok {
			return fmt.Errorf("invalid amount %q", x)
		}
	case int64:
		i = sdkmath.NewInt(x)
	case uint64:
		i = sdkmath.NewIntFromUint64(x)
	case nil:
		i = sdkmath.ZeroInt()
	default:
		return fmt.Errorf("invalid amount type %T", v)
	}
	if i.IsNegative() {
		return fmt.Errorf("negative amount %s", i)
	}
	a.Int = i
	return nil
}
