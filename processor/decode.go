package processor

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"github.com/beevik/etree"
)

// DecodeBinary returns decoded content of FictionBook binary element. Text of nested elements, if any,
// is part of the content.
func DecodeBinary(el *etree.Element) ([]byte, error) {

	var b strings.Builder
	collectText(&b, el)

	// base64 in books is split into lines and often indented
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, b.String())

	if len(s) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrDecode, fmt.Errorf("binary %q is empty", getAttrValue(el, "id")))
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: binary %q: %w", ErrDecode, getAttrValue(el, "id"), err)
	}
	return data, nil
}

// collectText appends character data of element and all its descendants in document order.
func collectText(b *strings.Builder, el *etree.Element) {
	for _, t := range el.Child {
		switch v := t.(type) {
		case *etree.CharData:
			b.WriteString(v.Data)
		case *etree.Element:
			collectText(b, v)
		}
	}
}
