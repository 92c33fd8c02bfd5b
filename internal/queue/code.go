package queue

import (
	"fmt"
	"math/rand/v2"
)

// CodeGenerator issues 4-digit verification codes. The code is a pickup
// confirmation shown to staff, not a credential.
type CodeGenerator struct {
	intN func(n int) int
}

// NewCodeGenerator uses math/rand/v2 as the source.
func NewCodeGenerator() *CodeGenerator { return &CodeGenerator{intN: rand.IntN} }

// NewCodeGeneratorWithSource lets tests supply a deterministic source.
func NewCodeGeneratorWithSource(intN func(n int) int) *CodeGenerator {
	return &CodeGenerator{intN: intN}
}

// Generate returns a code in "0000".."9999".
func (g *CodeGenerator) Generate() string {
	return fmt.Sprintf("%04d", g.intN(10000))
}
