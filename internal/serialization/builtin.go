package serialization

import (
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

const (
	SerializerIDJSON     SerializerID = 1
	SerializerIDProtobuf SerializerID = 2
)

// JSONSerializer is the built-in fallback: it round-trips any Go value
// through encoding/json, using hint to allocate the concrete destination
// type on decode.
type JSONSerializer struct{}

func (JSONSerializer) ID() SerializerID { return SerializerIDJSON }

func (JSONSerializer) ToBinary(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) FromBinary(data []byte, hint reflect.Type) (any, error) {
	if hint == nil {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	ptr := reflect.New(hint)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// ProtoSerializer handles values implementing proto.Message, identifying
// the concrete type by its protobuf manifest (full message name) so a
// remote peer on a different Go build can still decode it.
type ProtoSerializer struct{}

func (ProtoSerializer) ID() SerializerID { return SerializerIDProtobuf }

func (ProtoSerializer) ToBinary(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("serialization: %T does not implement proto.Message", v)
	}
	return proto.Marshal(msg)
}

func (ProtoSerializer) FromBinary(data []byte, hint reflect.Type) (any, error) {
	if hint == nil {
		return nil, fmt.Errorf("serialization: protobuf decode requires a type hint")
	}
	ptr := reflect.New(hint.Elem())
	msg, ok := ptr.Interface().(proto.Message)
	if !ok {
		return nil, fmt.Errorf("serialization: hint %s does not implement proto.Message", hint)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (ProtoSerializer) Manifest(v any) string {
	msg, ok := v.(proto.Message)
	if !ok {
		return ""
	}
	return string(msg.ProtoReflect().Descriptor().FullName())
}

func (p ProtoSerializer) FromBinaryManifest(data []byte, manifest string) (any, error) {
	mt, err := protoMessageTypeByName(manifest)
	if err != nil {
		return nil, err
	}
	msg := mt.New().Interface()
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
