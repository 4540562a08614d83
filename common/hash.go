package common

import (
	"golang.org/x/crypto/blake2b"
)

func Blake2Hash(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}
