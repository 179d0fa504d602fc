package session

import (
	"crypto/rand"
	"encoding/hex"
)

// CodeLength is the number of characters in a generated session code.
const CodeLength = 4

// CodeGenerator produces candidate session codes.
type CodeGenerator func() string

// GenerateCode returns a random 4-character hex code (2 random bytes).
// Collisions are possible; Manager.Create overwrites on collision.
func GenerateCode() string {
	bytes := make([]byte, CodeLength/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
