package grpctransport

import "fmt"

// rawCodec passes frame bytes through unmodified: the bridge already
// encodes/decodes its own frame format, so gRPC's job here is only to
// move opaque byte slices between peers, not to impose its own message
// schema.
type rawCodec struct{}

func (rawCodec) Name() string { return "fraktor.raw" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	default:
		return nil, fmt.Errorf("grpctransport: rawCodec cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	ptr, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("grpctransport: rawCodec cannot unmarshal into %T", v)
	}
	*ptr = append((*ptr)[:0], data...)
	return nil
}
