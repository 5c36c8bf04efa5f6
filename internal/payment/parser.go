package payment

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	amountPattern = regexp.MustCompile(`\$?\s*([0-9]+(?:\.[0-9]{1,2})?)`)
	payeePattern  = regexp.MustCompile(`(?i)\bto\b\s+([A-Za-z0-9 .,'"-]+)`)
)

// ParsedCommand 是 ParseCommand 的输出。任何字段都可能为空。
type ParsedCommand struct {
	Amount    *float64
	PayeeName string
	Purpose   string
}

// ParseCommand 对形如 "Pay $50 to Sam for lunch" 的简单指令做确定性解析。
// 三个字段各取首个匹配；重叠情形（比如收款人名字里出现 for）
// 不做消歧，首个匹配即为结果。永不报错。
func ParseCommand(command string) ParsedCommand {
	var parsed ParsedCommand

	if m := amountPattern.FindStringSubmatch(command); m != nil {
		if amount, err := strconv.ParseFloat(m[1], 64); err == nil {
			parsed.Amount = &amount
		}
	}

	if m := payeePattern.FindStringSubmatch(command); m != nil {
		parsed.PayeeName = strings.Trim(strings.TrimSpace(m[1]), `"'`)
	}

	if idx := strings.Index(strings.ToLower(command), " for "); idx >= 0 {
		parsed.Purpose = strings.TrimSpace(command[idx+len(" for "):])
	}

	return parsed
}
