package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName content-subtype，請求標頭為 application/grpc+json
const codecName = "json"

// jsonCodec 以 JSON 編碼訊息，服務不依賴 protoc 產生的程式碼
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
