package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Token is a minted session credential.
//
// The wire form is "<expiry> <username>", where expiry is decimal epoch
// milliseconds. When the Authenticator has a signing key a third field holds
// the hex HMAC-SHA256 of the first two. Expiries beyond the int64 range do
// not parse and are reported as ErrMalformed.
type Token struct {
	Username string
	Expiry   int64 // epoch milliseconds
	mac      string
}

// String returns the wire form of the token.
func (t Token) String() string {
	s := t.payload()
	if t.mac != "" {
		s += " " + t.mac
	}
	return s
}

func (t Token) payload() string {
	return strconv.FormatInt(t.Expiry, 10) + " " + t.Username
}

// parseToken splits a wire token. signed selects the expected field count.
func parseToken(s string, signed bool) (Token, error) {
	fields := strings.Split(s, " ")
	want := 2
	if signed {
		want = 3
	}
	if len(fields) != want {
		return Token{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformed, want, len(fields))
	}

	expiry, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || expiry < 0 {
		return Token{}, fmt.Errorf("%w: expiry %q is not a timestamp", ErrMalformed, fields[0])
	}
	if fields[1] == "" {
		return Token{}, fmt.Errorf("%w: empty username", ErrMalformed)
	}

	tok := Token{Username: fields[1], Expiry: expiry}
	if signed {
		tok.mac = fields[2]
	}
	return tok, nil
}

func sign(key []byte, payload string) string {
	m := hmac.New(sha256.New, key)
	m.Write([]byte(payload))
	return hex.EncodeToString(m.Sum(nil))
}

func verify(key []byte, tok Token) bool {
	got, err := hex.DecodeString(tok.mac)
	if err != nil {
		return false
	}
	m := hmac.New(sha256.New, key)
	m.Write([]byte(tok.payload()))
	return hmac.Equal(got, m.Sum(nil))
}
