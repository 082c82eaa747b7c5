// internal/llm/settings.go
package llm

import "fmt"

// Settings keys understood by the built-in providers. Other keys are ignored.
const (
	SettingTemperature = "temperature"
	SettingMaxTokens   = "max_tokens"
	SettingTopP        = "top_p"
	SettingSeed        = "seed"
	SettingStop        = "stop"
)

func floatSetting(settings map[string]interface{}, key string) (float64, bool) {
	switch v := settings[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func intSetting(settings map[string]interface{}, key string) (int, bool) {
	switch v := settings[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// stopSetting accepts a single string or a list of strings.
func stopSetting(settings map[string]interface{}) []string {
	switch v := settings[SettingStop].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}
