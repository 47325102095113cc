package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
)

// Args 是模型传入的工具参数。小模型经常把参数包成 {"value": x} 或
// {"type": "string", "value": x} 这类带类型注解的对象，读取时会自动拆开。
type Args map[string]any

// raw 返回拆包后的参数值。
func (a Args) raw(key string) any {
	v, ok := a[key]
	if !ok {
		return nil
	}
	return unwrap(key, v, 0)
}

func unwrap(key string, v any, depth int) any {
	m, ok := v.(map[string]any)
	if !ok || depth > 3 {
		return v
	}
	if inner, ok := m[key]; ok {
		return unwrap(key, inner, depth+1)
	}
	if inner, ok := m["value"]; ok {
		return unwrap(key, inner, depth+1)
	}
	return v
}

// Has 判断参数是否存在且非空。
func (a Args) Has(key string) bool {
	return a.String(key) != ""
}

// String 读取字符串参数，数字会被格式化，对象会被序列化为 JSON。
func (a Args) String(key string) string {
	switch v := a.raw(key).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// Int 读取整数参数。参数缺失时 ok 为 false。
func (a Args) Int(key string) (value int64, ok bool, err error) {
	switch v := a.raw(key).(type) {
	case nil:
		return 0, false, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, true, invalidArg(key, "must be an integer")
		}
		return int64(v), true, nil
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, true, invalidArg(key, "must be an integer")
		}
		return n, true, nil
	default:
		return 0, true, invalidArg(key, "must be an integer")
	}
}

// Amount 读取金额参数，支持数字与 "$1,200.50" 形式的字符串。
func (a Args) Amount(key string) (bank.Cents, error) {
	switch v := a.raw(key).(type) {
	case nil:
		return 0, invalidArg(key, "is required")
	case float64:
		return bank.FromDollars(v), nil
	case int:
		return bank.FromDollars(float64(v)), nil
	case int64:
		return bank.FromDollars(float64(v)), nil
	case string:
		c, err := bank.ParseDollars(v)
		if err != nil {
			return 0, invalidArg(key, "must be a number")
		}
		return c, nil
	default:
		return 0, invalidArg(key, "must be a number")
	}
}

// Map 读取对象参数，也接受 JSON 字符串。
func (a Args) Map(key string) map[string]any {
	switch v := a[key].(type) {
	case map[string]any:
		return v
	case string:
		out := make(map[string]any)
		if err := json.Unmarshal([]byte(v), &out); err == nil {
			return out
		}
	}
	return nil
}

func invalidArg(key, reason string) error {
	return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s %s", key, reason))
}
