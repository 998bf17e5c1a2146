package registry

import "math/rand"

const DefaultCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator draws room codes from a fixed alphabet, retrying on
// collision. Intn is a field so tests can script draws and force collisions.
type CodeGenerator struct {
	Alphabet    string
	Length      int
	MaxAttempts int
	Intn        func(n int) int
}

func NewCodeGenerator(length int) *CodeGenerator {
	return &CodeGenerator{
		Alphabet:    DefaultCodeAlphabet,
		Length:      length,
		MaxAttempts: 64,
		Intn:        rand.Intn,
	}
}

// Generate returns a code for which taken reports false, or
// ErrCodesExhausted after MaxAttempts colliding draws.
func (g *CodeGenerator) Generate(taken func(code string) bool) (string, error) {
	for attempt := 0; attempt < g.MaxAttempts; attempt++ {
		b := make([]byte, g.Length)
		for i := range b {
			b[i] = g.Alphabet[g.Intn(len(g.Alphabet))]
		}
		code := string(b)
		if !taken(code) {
			return code, nil
		}
	}
	return "", ErrCodesExhausted
}
