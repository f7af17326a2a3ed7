package types

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"
)

// Errors returned when decoding a QueryID.
var (
	ErrInvalidQueryIDLength    = errors.New("invalid query id length")
	ErrInvalidQueryIDCharacter = errors.New("invalid query id character")
)

// QueryID identifies one engine call. It is a ULID: a 48-bit millisecond
// timestamp followed by 80 random bits, so IDs sort by issue time.
type QueryID [16]byte

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// QueryIDGenerator issues QueryIDs that are strictly increasing within a
// process, including several issued in the same millisecond.
type QueryIDGenerator struct {
	mu      sync.Mutex
	lastMs  uint64
	entropy [10]byte
}

// NewQueryIDGenerator creates a generator.
func NewQueryIDGenerator() *QueryIDGenerator {
	return &QueryIDGenerator{}
}

// Next issues an ID stamped with the current time.
func (g *QueryIDGenerator) Next() (QueryID, error) {
	return g.NextAt(time.Now())
}

// NextAt issues an ID stamped with t.
func (g *QueryIDGenerator) NextAt(t time.Time) (QueryID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := uint64(t.UnixMilli())
	if ms == g.lastMs {
		for i := len(g.entropy) - 1; i >= 0; i-- {
			g.entropy[i]++
			if g.entropy[i] != 0 {
				break
			}
		}
	} else {
		if _, err := rand.Read(g.entropy[:]); err != nil {
			return QueryID{}, err
		}
		g.lastMs = ms
	}

	var id QueryID
	for i := 0; i < 6; i++ {
		id[i] = byte(ms >> (40 - 8*i))
	}
	copy(id[6:], g.entropy[:])
	return id, nil
}

// Millis returns the embedded timestamp in Unix milliseconds.
func (id QueryID) Millis() uint64 {
	var ms uint64
	for i := 0; i < 6; i++ {
		ms = ms<<8 | uint64(id[i])
	}
	return ms
}

// Time returns the embedded timestamp.
func (id QueryID) Time() time.Time {
	return time.UnixMilli(int64(id.Millis()))
}

// Compare orders two IDs byte-wise.
func (id QueryID) Compare(other QueryID) int {
	for i := range id {
		switch {
		case id[i] < other[i]:
			return -1
		case id[i] > other[i]:
			return 1
		}
	}
	return 0
}

// String encodes the ID as 26 Crockford base32 characters. The 128 bits
// are left-padded to 130 so each character carries exactly five bits.
func (id QueryID) String() string {
	var out [26]byte
	for c := 0; c < 26; c++ {
		var sym byte
		for b := 0; b < 5; b++ {
			bit := c*5 + b - 2
			sym <<= 1
			if bit >= 0 && id[bit/8]&(0x80>>(bit%8)) != 0 {
				sym |= 1
			}
		}
		out[c] = crockford[sym]
	}
	return string(out[:])
}

// ParseQueryID decodes the output of QueryID.String. Lower-case input is
// accepted.
func ParseQueryID(s string) (QueryID, error) {
	var id QueryID
	if len(s) != 26 {
		return id, ErrInvalidQueryIDLength
	}
	for c := 0; c < 26; c++ {
		sym, ok := crockfordIndex(s[c])
		if !ok {
			return QueryID{}, ErrInvalidQueryIDCharacter
		}
		for b := 0; b < 5; b++ {
			bit := c*5 + b - 2
			if sym&(0x10>>b) == 0 {
				continue
			}
			if bit < 0 {
				// Only 128 bits fit; the first character is at most '7'.
				return QueryID{}, ErrInvalidQueryIDCharacter
			}
			id[bit/8] |= 0x80 >> (bit % 8)
		}
	}
	return id, nil
}

func crockfordIndex(ch byte) (byte, bool) {
	if ch >= 'a' && ch <= 'z' {
		ch -= 'a' - 'A'
	}
	for i := 0; i < len(crockford); i++ {
		if crockford[i] == ch {
			return byte(i), true
		}
	}
	return 0, false
}
