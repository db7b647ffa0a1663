package badger

import (
	"fmt"

	"github.com/calyptra/lodestone/core"
)

// Key prefixes for different data types. Collection and source names are
// embedded in keys, so they must not contain the ':' separator; the
// repositories validate this on the way in.
const (
	manifestPrefix = "colman"
	vectorPrefix   = "vecrec"
	chunkPrefix    = "chkrec"
)

// makeManifestKey generates the key for a collection manifest.
func makeManifestKey(collection string) []byte {
	return []byte(fmt.Sprintf("%s:%s", manifestPrefix, collection))
}

// makeVectorKey generates the key for a vector record in a collection.
func makeVectorKey(collection string, id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d", vectorPrefix, collection, id))
}

// makeVectorScanPrefix generates the prefix covering all vector records of
// a collection.
func makeVectorScanPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", vectorPrefix, collection))
}

// makeChunkKey generates the key for a persisted chunk of a source.
func makeChunkKey(source string, id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d", chunkPrefix, source, id))
}

// makeChunkScanPrefix generates the prefix covering all chunks of a source.
func makeChunkScanPrefix(source string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", chunkPrefix, source))
}
