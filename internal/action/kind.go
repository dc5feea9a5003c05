package action

import "fmt"

// Kind identifies the type of a user intent.
type Kind int

const (
	KindLike Kind = iota + 1
	KindBookmark
	KindFollow
	KindReclip
	KindPost
	KindComment
	KindView
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{KindLike, KindBookmark, KindFollow, KindReclip, KindPost, KindComment, KindView}

var kindNames = map[Kind]string{
	KindLike:     "like",
	KindBookmark: "bookmark",
	KindFollow:   "follow",
	KindReclip:   "reclip",
	KindPost:     "post",
	KindComment:  "comment",
	KindView:     "view",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Idempotent reports whether repeating the server call is a no-op.
// Creation kinds (post, comment) are not.
func (k Kind) Idempotent() bool {
	switch k {
	case KindLike, KindBookmark, KindFollow, KindReclip, KindView:
		return true
	case KindPost, KindComment:
		return false
	default:
		return false
	}
}

// ParseKind parses the lower-case kind name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown action kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
