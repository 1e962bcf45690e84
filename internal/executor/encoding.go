package executor

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

type decoder struct {
	enc encoding.Encoding
}

// newDecoder resolves a WHATWG encoding label. utf8, utf-8 and the empty
// label pass bytes through untouched.
func newDecoder(label string) (*decoder, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf8", "utf-8":
		return &decoder{}, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", label)
	}
	return &decoder{enc: enc}, nil
}

func (d *decoder) decode(raw []byte) ([]byte, error) {
	if d.enc == nil {
		return raw, nil
	}
	return d.enc.NewDecoder().Bytes(raw)
}
