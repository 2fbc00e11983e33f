package imaging

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// DataURL renders data as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL or a bare base64 string. Bare input
// reports an empty media type.
func ParseDataURL(s string) ([]byte, string, error) {
	mime := ""
	if strings.HasPrefix(s, "data:") {
		meta, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, "", errors.New("invalid data URL: missing payload")
		}
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("invalid data URL: only base64 payloads are supported")
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return data, mime, nil
}
