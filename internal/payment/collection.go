package payment

import (
	"math"
	"strconv"
	"strings"
)

// unwrapCollection 从提供方返回的载荷中取出记录列表。提供方的包装键名
// 不稳定，按给定顺序尝试；载荷本身是数组也接受；全都不认识时退化为空。
func unwrapCollection(payload any, keys ...string) []map[string]any {
	switch typed := payload.(type) {
	case map[string]any:
		for _, key := range keys {
			if items := asRecords(typed[key]); len(items) > 0 {
				return items
			}
		}
		return nil
	default:
		return asRecords(payload)
	}
}

func asRecords(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if record, ok := item.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records
}

// fieldString 取出记录中第一个非空字段的字符串形式。
func fieldString(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringify(record[key]); s != "" {
			return s
		}
	}
	return ""
}

// stringify 把 JSON 解码产物转成字符串。数值型 ID 常见于
// 提供方响应，整数值不能带小数点。
func stringify(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		if typed == math.Trunc(typed) && !math.IsInf(typed, 0) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}

// normalizeText 做大小写折叠并压缩内部空白，用于名称与邮箱比较。
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}
