package ledger

import (
	"math/big"
	"strings"
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FormatEther renders a wei amount as a decimal ether string, keeping at
// least one fractional digit ("1.0", "0.25").
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}
	neg := wei.Sign() < 0
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(wei), weiPerEther, new(big.Int))
	frac := strings.TrimRight(leftPad(r.String(), 18), "0")
	if frac == "" {
		frac = "0"
	}
	out := q.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// EncodeMemo turns a free-form memo into transaction call data.
func EncodeMemo(memo string) []byte {
	if memo == "" {
		return nil
	}
	return []byte(memo)
}

// DecodeMemo reads call data back as UTF-8, replacing invalid sequences.
func DecodeMemo(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}
