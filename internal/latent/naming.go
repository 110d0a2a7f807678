package latent

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// maxStemBytes keeps file names well under the 255 byte limit of common
// filesystems once a dimension and extension are appended.
const maxStemBytes = 200

// FormatWeight renders a blend fraction or weight in its shortest exact decimal
// form, so 0.5 is "0.5" and 1 is "1".
func FormatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// FileStem returns a name usable as a file or directory name. Long names, which
// nested lerps produce easily, are replaced by a prefix and their digest.
func FileStem(name string) string {
	if len(name) <= maxStemBytes {
		return name
	}
	prefix := name
	if i := strings.IndexByte(prefix, '_'); i > 0 && i < 16 {
		prefix = prefix[:i]
	} else {
		prefix = prefix[:8]
	}
	return prefix + "_" + digestHex(name)
}

// ShardPath joins the proxy's shard segments and file stem into a relative
// directory list, shard first.
func ShardPath(p Proxy) []string {
	return append(p.Shard(), FileStem(p.Name()))
}

func digestHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
