package portrait

import (
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HashToken returns the base64 SHA-1 digest of a correlation token. Portrait
// URLs carry the digest so the raw token never appears in transport logs.
func HashToken(token string) string {
	sum := sha1.Sum([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// PortraitURL derives the image address for req. The t parameter busts
// intermediary caches, so two URLs for the same image are never equal; cache
// keys are derived from the Mode instead.
func PortraitURL(server string, req ImageRequest, now time.Time) string {
	q := url.Values{}
	q.Set("img_id", strconv.FormatInt(req.PortraitID, 10))
	q.Set("img_id_token", HashToken(req.UUID))
	q.Set("t", strconv.FormatInt(now.UnixNano(), 10))
	return strings.TrimSuffix(server, "/") + "/image/user_" + gender(req.Male) + "/_portrait?" + q.Encode()
}
