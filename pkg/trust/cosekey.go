package trust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/fancl20/hcert/pkg/pki"
)

// COSE_Key labels and values (RFC 9052, RFC 9053, RFC 8230).
const (
	coseKeyLabelKty int64 = 1

	coseKeyLabelEC2Crv int64 = -1
	coseKeyLabelEC2X   int64 = -2
	coseKeyLabelEC2Y   int64 = -3

	coseKeyLabelRSAN int64 = -1
	coseKeyLabelRSAE int64 = -2

	coseKeyTypeEC2 int64 = 2
	coseKeyTypeRSA int64 = 3

	coseCurveP256 int64 = 1
)

// COSEKey is a public key in COSE_Key representation. Only EC2 keys on
// P-256 and RSA keys are supported.
type COSEKey struct {
	Type  int64
	Curve int64
	X, Y  []byte
	N, E  []byte
}

// NewCOSEKey converts pub into its COSE_Key representation.
func NewCOSEKey(pub pki.PublicKey) (COSEKey, error) {
	switch k := pub.Crypto().(type) {
	case *ecdsa.PublicKey:
		size := (k.Curve.Params().BitSize + 7) / 8
		return COSEKey{
			Type:  coseKeyTypeEC2,
			Curve: coseCurveP256,
			X:     k.X.FillBytes(make([]byte, size)),
			Y:     k.Y.FillBytes(make([]byte, size)),
		}, nil
	case *rsa.PublicKey:
		return COSEKey{
			Type: coseKeyTypeRSA,
			N:    k.N.Bytes(),
			E:    big.NewInt(int64(k.E)).Bytes(),
		}, nil
	}
	return COSEKey{}, fmt.Errorf("%w: %T", pki.ErrUnsupportedKeyType, pub.Crypto())
}

// PublicKey reconstructs the verification key.
func (k COSEKey) PublicKey() (pki.PublicKey, error) {
	switch k.Type {
	case coseKeyTypeEC2:
		if k.Curve != coseCurveP256 {
			return nil, fmt.Errorf("%w: COSE curve %d", pki.ErrUnsupportedKeyType, k.Curve)
		}
		curve := elliptic.P256()
		x, y := new(big.Int).SetBytes(k.X), new(big.Int).SetBytes(k.Y)
		if !curve.IsOnCurve(x, y) {
			return nil, fmt.Errorf("EC2 point is not on P-256")
		}
		return pki.NewPublicKey(&ecdsa.PublicKey{Curve: curve, X: x, Y: y})
	case coseKeyTypeRSA:
		e := new(big.Int).SetBytes(k.E)
		if len(k.N) == 0 || !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
			return nil, fmt.Errorf("invalid RSA public key")
		}
		return pki.NewPublicKey(&rsa.PublicKey{N: new(big.Int).SetBytes(k.N), E: int(e.Int64())})
	}
	return nil, fmt.Errorf("%w: COSE key type %d", pki.ErrUnsupportedKeyType, k.Type)
}

// MarshalCBOR encodes the key as an integer-labelled COSE_Key map.
func (k COSEKey) MarshalCBOR() ([]byte, error) {
	m := map[int64]any{coseKeyLabelKty: k.Type}
	switch k.Type {
	case coseKeyTypeEC2:
		m[coseKeyLabelEC2Crv] = k.Curve
		m[coseKeyLabelEC2X] = k.X
		m[coseKeyLabelEC2Y] = k.Y
	case coseKeyTypeRSA:
		m[coseKeyLabelRSAN] = k.N
		m[coseKeyLabelRSAE] = k.E
	default:
		return nil, fmt.Errorf("unsupported COSE key type %d", k.Type)
	}
	return encMode.Marshal(m)
}

// UnmarshalCBOR decodes an integer-labelled COSE_Key map.
func (k *COSEKey) UnmarshalCBOR(data []byte) error {
	var m map[int64]cbor.RawMessage
	if err := decMode.Unmarshal(data, &m); err != nil {
		return err
	}
	var key COSEKey
	if err := unmarshalLabel(m, coseKeyLabelKty, &key.Type); err != nil {
		return err
	}
	switch key.Type {
	case coseKeyTypeEC2:
		if err := unmarshalLabel(m, coseKeyLabelEC2Crv, &key.Curve); err != nil {
			return err
		}
		if err := unmarshalLabel(m, coseKeyLabelEC2X, &key.X); err != nil {
			return err
		}
		if err := unmarshalLabel(m, coseKeyLabelEC2Y, &key.Y); err != nil {
			return err
		}
	case coseKeyTypeRSA:
		if err := unmarshalLabel(m, coseKeyLabelRSAN, &key.N); err != nil {
			return err
		}
		if err := unmarshalLabel(m, coseKeyLabelRSAE, &key.E); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported COSE key type %d", key.Type)
	}
	*k = key
	return nil
}

func unmarshalLabel(m map[int64]cbor.RawMessage, label int64, v any) error {
	raw, ok := m[label]
	if !ok {
		return fmt.Errorf("COSE key: missing label %d", label)
	}
	if err := decMode.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("COSE key: label %d: %w", label, err)
	}
	return nil
}
