package command

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"TribalRealms/internal/world/entity"
)

// Decode 把 {"kind": "...", ...} 形式的通用 map 解成具体负载。HTTP 与 gRPC 共用。
func Decode(raw map[string]any) (Payload, error) {
	kind, _ := raw["kind"].(string)
	body := make(map[string]any, len(raw))
	for k, v := range raw {
		if k != "kind" {
			body[k] = v
		}
	}

	var out Payload
	switch Kind(kind) {
	case KindBuild:
		p := BuildPayload{}
		if err := decodeInto(body, &p); err != nil {
			return nil, err
		}
		out = p
	case KindTrain:
		p := TrainPayload{}
		if err := decodeInto(body, &p); err != nil {
			return nil, err
		}
		out = p
	case KindDispatch:
		p := DispatchPayload{}
		if err := decodeInto(body, &p); err != nil {
			return nil, err
		}
		out = p
	case KindRecall:
		p := RecallPayload{}
		if err := decodeInto(body, &p); err != nil {
			return nil, err
		}
		out = p
	default:
		return nil, entity.ErrInvalidCommand.WithData("kind", kind)
	}
	return out, nil
}

func decodeInto(body map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(body); err != nil {
		return entity.ErrInvalidCommand.WithCause(fmt.Errorf("decode payload: %w", err))
	}
	return nil
}
