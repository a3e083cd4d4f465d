package core

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// ChunkIDPrefix is prepended to every stored chunk id.
const ChunkIDPrefix = "chunk-"

// chunkIDNamespace seeds content-derived ids.
var chunkIDNamespace = uuid.MustParse("3f1c6a52-8f0e-4d59-9a51-4c1f7a0e2b6d")

// IDFunc returns the id of the n-th stored chunk of a document.
type IDFunc func(n int, text string) string

// SequentialIDs numbers chunks from zero. Re-ingesting any document reuses
// the same ids in the namespace.
func SequentialIDs() IDFunc {
	return func(n int, _ string) string {
		return fmt.Sprintf("%s%d", ChunkIDPrefix, n)
	}
}

// ContentIDs derives ids from the document bytes, the chunk position and its
// text. The same document always maps to the same ids and distinct documents
// do not collide.
func ContentIDs(document []byte) IDFunc {
	sum := sha256.Sum256(document)
	return func(n int, text string) string {
		name := fmt.Sprintf("%x:%d:%s", sum, n, text)
		return ChunkIDPrefix + uuid.NewSHA1(chunkIDNamespace, []byte(name)).String()
	}
}
