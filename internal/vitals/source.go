package vitals

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"sync"

	"github.com/pscheid92/vitalpulse/internal/domain"
)

// EntropySource yields uniformly distributed 64-bit values.
type EntropySource interface {
	Uint64() (uint64, error)
}

type readerSource struct {
	r io.Reader
}

// NewCryptoSource reads from the operating system's CSPRNG.
func NewCryptoSource() EntropySource {
	return readerSource{r: rand.Reader}
}

// NewReaderSource draws from an arbitrary byte stream. A short read is an exhausted source.
func NewReaderSource(r io.Reader) EntropySource {
	return readerSource{r: r}
}

func (s readerSource) Uint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(s.r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrGeneratorExhausted, err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// SeededSource is a deterministic PCG source for reproducible streams.
type SeededSource struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

func NewSeededSource(seed1, seed2 uint64) *SeededSource {
	return &SeededSource{rng: mrand.New(mrand.NewPCG(seed1, seed2))}
}

func (s *SeededSource) Uint64() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Uint64(), nil
}
