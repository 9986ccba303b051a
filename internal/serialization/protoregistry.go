package serialization

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

func protoMessageTypeByName(manifest string) (protoreflect.MessageType, error) {
	mt, err := protoregistry.GlobalTypes.FindMessageByName(protoreflect.FullName(manifest))
	if err != nil {
		return nil, fmt.Errorf("serialization: manifest %q not resolved: %w", manifest, err)
	}
	return mt, nil
}
