package forecast

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"
)

// Source supplies uniformly distributed integers. Implementations must be
// safe for concurrent use: a single Source is shared by all requests.
type Source interface {
	// IntN returns an integer in [0, n). n must be positive.
	IntN(n int) (int, error)
}

// LockedSource is a seeded PCG generator guarded by a mutex.
type LockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedSource returns a PCG-backed Source. A zero seed draws the seed
// from crypto/rand.
func NewLockedSource(seed uint64) (*LockedSource, error) {
	if seed == 0 {
		var b [8]byte
		if _, err := crand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("%w: seeding random source: %v", ErrEnvironmentUnavailable, err)
		}
		seed = binary.LittleEndian.Uint64(b[:])
	}
	return &LockedSource{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// IntN implements Source.
func (s *LockedSource) IntN(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("IntN: n must be positive, got %d", n)
	}
	s.mu.Lock()
	v := s.rng.IntN(n)
	s.mu.Unlock()
	return v, nil
}

// CryptoSource draws from crypto/rand. It is stateless and therefore safe
// for concurrent use; reads can fail if the system entropy pool does.
type CryptoSource struct{}

// NewCryptoSource returns a Source backed by the operating system CSPRNG.
func NewCryptoSource() *CryptoSource {
	return &CryptoSource{}
}

// IntN implements Source.
func (CryptoSource) IntN(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("IntN: n must be positive, got %d", n)
	}
	v, err := crand.Int(crand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("reading crypto/rand: %w", err)
	}
	return int(v.Int64()), nil
}

// Source kinds accepted by NewSource.
const (
	SourcePCG    = "pcg"
	SourceCrypto = "crypto"
)

// NewSource builds the Source named by kind.
func NewSource(kind string, seed uint64) (Source, error) {
	switch kind {
	case SourcePCG, "":
		return NewLockedSource(seed)
	case SourceCrypto:
		return NewCryptoSource(), nil
	default:
		return nil, fmt.Errorf("unknown random source %q", kind)
	}
}
