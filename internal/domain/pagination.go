package domain

import (
	"encoding/base64"
	"strconv"
)

// History page sizes.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// PageRequest selects one page of a listing. PageToken is the opaque value
// returned as next_page_token by the previous page.
type PageRequest struct {
	MaxResults int
	PageToken  string
}

// Validate rejects tokens that were not produced by EncodePageToken.
func (p PageRequest) Validate() error {
	if _, ok := decodeOffset(p.PageToken); !ok {
		return ErrValidation("invalid page_token")
	}
	return nil
}

// Offset is the number of rows to skip. Invalid tokens start from the top.
func (p PageRequest) Offset() int {
	n, _ := decodeOffset(p.PageToken)
	return n
}

// Limit clamps MaxResults to [1, MaxPageSize], defaulting to DefaultPageSize.
func (p PageRequest) Limit() int {
	switch {
	case p.MaxResults <= 0:
		return DefaultPageSize
	case p.MaxResults > MaxPageSize:
		return MaxPageSize
	default:
		return p.MaxResults
	}
}

// EncodePageToken returns the token for offset, or "" for the first page.
func EncodePageToken(offset int) string {
	if offset <= 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// NextPageToken returns the token of the page after [offset, offset+limit),
// or "" when total rows are exhausted.
func NextPageToken(offset, limit int, total int64) string {
	if int64(offset+limit) >= total {
		return ""
	}
	return EncodePageToken(offset + limit)
}

func decodeOffset(token string) (int, bool) {
	if token == "" {
		return 0, true
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
