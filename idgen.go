package pinledger

import (
	"math/rand/v2"
	"sync"
)

//go:generate mockgen -source=idgen.go -destination=mocks/idgen.go -package=mocks

const (
	acctNoLetters  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	acctNoDigits   = "0123456789"
	acctNoSpecials = "!@#$%^&*"
	AcctNoLen      = 7
)

type IDGenerator interface {
	Generate() string
}

// RandomIDGenerator builds account numbers out of three letters, three digits
// and one special character in shuffled order. It does not check for
// collisions; the service does that against the loaded records.
type RandomIDGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var (
	_ IDGenerator = (*RandomIDGenerator)(nil)
)

// NewRandomIDGenerator uses rng when given, otherwise a ChaCha8 source seeded
// from the runtime.
func NewRandomIDGenerator(rng *rand.Rand) *RandomIDGenerator {
	if rng == nil {
		var seed [32]byte
		for i := range seed {
			seed[i] = byte(rand.Uint32())
		}
		rng = rand.New(rand.NewChaCha8(seed))
	}
	return &RandomIDGenerator{rng: rng}
}

func (g *RandomIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	acc := make([]byte, 0, AcctNoLen)
	for i := 0; i < 3; i++ {
		acc = append(acc, acctNoLetters[g.rng.IntN(len(acctNoLetters))])
	}
	for i := 0; i < 3; i++ {
		acc = append(acc, acctNoDigits[g.rng.IntN(len(acctNoDigits))])
	}
	acc = append(acc, acctNoSpecials[g.rng.IntN(len(acctNoSpecials))])
	g.rng.Shuffle(len(acc), func(i, j int) {
		acc[i], acc[j] = acc[j], acc[i]
	})
	return string(acc)
}
