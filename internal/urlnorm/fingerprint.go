package urlnorm

import (
	"crypto/md5" //nolint:gosec // not used for security, only as a stable cache key
	"encoding/hex"
)

// Fingerprint returns the cache key for a URL: the hex MD5 digest of its
// normalized form. Two URLs that normalize identically always share a
// fingerprint. The digest is fixed-length and filesystem-safe, so it doubles
// as the artifact file name stem in the cache directory.
func Fingerprint(raw string) string {
	sum := md5.Sum([]byte(Normalize(raw))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
