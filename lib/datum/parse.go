package datum

import (
	"encoding/hex"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/lib/metrics"
)

// Decode returns the node encoded in the hex string h.
func Decode(h string) (*Value, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return nil, ErrEmpty
	}

	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("invalid datum hex: %w", err)
	}

	v := new(Value)
	if err = decMode.Unmarshal(b, v); err != nil {
		return nil, fmt.Errorf("cannot decode datum: %w", err)
	}

	return v, nil
}

// Parse is Decode for inline datums read from the ledger: an undecodable datum yields nil. Failures are logged and
// counted but never returned, so one malformed output cannot break a scan over an address.
func Parse(h string) *Value {
	v, err := Decode(h)
	if err != nil {
		log.Warnf("Ignoring datum %.32s: %v", h, err)
		metrics.DatumFailure()

		return nil
	}

	return v
}

// Encode returns the hex encoding of v.
func Encode(v *Value) (string, error) {
	b, err := v.MarshalCBOR()
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// Pattern selects datums. An empty Constructor matches any node; nil Fields are wildcards.
type Pattern struct {
	Constructor string
	Fields      []*Value
}

// Match reports whether v has the constructor of p and equals every non nil field of p at the same position.
func Match(v *Value, p Pattern) bool {
	if p.Constructor != "" && v.Constructor() != p.Constructor {
		return false
	}

	for i, f := range p.Fields {
		if f != nil && !Equal(v.Field(i), f) {
			return false
		}
	}

	return true
}
