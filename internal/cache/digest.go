package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SourceHash digests template source for cache-adjacent identification.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// RenderKey digests a (source, context) pair for the rendered-output
// cache. encoding/json writes map keys in sorted order, so equal contexts
// digest equally regardless of insertion order. Contexts that cannot be
// marshaled (funcs, channels) return false and bypass the cache; the
// render itself still proceeds.
func RenderKey(source string, context any) (string, bool) {
	data, err := json.Marshal(context)
	if err != nil {
		return "", false
	}
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), true
}
