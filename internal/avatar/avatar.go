// Package avatar builds Gravatar-style avatar URLs for student e-mails.
package avatar

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
)

// Client builds avatar URLs against a Gravatar-compatible service.
type Client struct {
	// BaseURL is the avatar endpoint without the trailing hash, e.g. https://www.gravatar.com/avatar.
	BaseURL string

	// DefaultImg is the fallback image passed in the `d` query parameter.
	DefaultImg string
}

// New creates a Client.
func New(baseURL, defaultImg string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		DefaultImg: defaultImg,
	}
}

// URL returns the avatar URL for email: <base>/<md5 hex>?d=<default image>.
func (c *Client) URL(email string) string {
	return c.BaseURL + "/" + Hash(email) + "?d=" + url.QueryEscape(c.DefaultImg)
}

// Hash returns the 32 character hex MD5 of the normalized e-mail.
func Hash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
