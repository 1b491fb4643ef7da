package mcp

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// ArgumentGetter is implemented by mcp.CallToolRequest.
type ArgumentGetter interface {
	GetArguments() map[string]any
}

// bindArguments decodes tool arguments into target using its json tags.
// Clients sometimes send every parameter as a string, including
// JSON-encoded arrays and objects; those are decoded before binding.
func bindArguments[T any](request ArgumentGetter, target *T) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			jsonStringHook,
			mapstructure.StringToSliceHookFunc(","),
		),
		Result:  target,
		TagName: "json",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(request.GetArguments())
}

func jsonStringHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	raw := strings.TrimSpace(data.(string))
	if raw == "" {
		return data, nil
	}

	kind := to.Kind()
	if kind == reflect.Ptr {
		kind = to.Elem().Kind()
	}
	switch {
	case kind == reflect.Slice && strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"),
		kind == reflect.Map && strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}"),
		kind == reflect.Struct && strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}"):
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v, nil
		}
	case kind == reflect.Bool && (raw == "true" || raw == "false"):
		return raw == "true", nil
	case kind >= reflect.Int && kind <= reflect.Float64:
		var n json.Number
		if err := json.Unmarshal([]byte(raw), &n); err == nil {
			return n, nil
		}
	}
	return data, nil
}
