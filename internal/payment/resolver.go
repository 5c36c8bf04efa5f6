package payment

import (
	"sort"
	"strings"
)

// contactWrapKeys 是联系人列表可能的包装键名，按优先级排列。
var contactWrapKeys = []string{"contacts", "data", "items", "results"}

const maxCandidates = 5

// resolvePayee 在联系人目录里匹配收款人。优先级：精确邮箱 > 名称模糊匹配
// > 无匹配兜底。永不报错，匹配不到以 confidence 0 返回。
func resolvePayee(contactsPayload any, name, email string) ResolvedPayee {
	contacts := unwrapCollection(contactsPayload, contactWrapKeys...)

	// 邮箱精确命中时无条件胜出，名称提示被忽略。
	if email != "" {
		needle := normalizeText(email)
		for _, contact := range contacts {
			if normalizeText(stringify(contact["email"])) == needle {
				return ResolvedPayee{
					ContactID:       fieldString(contact, "id", "contactId"),
					Name:            fieldString(contact, "name", "displayName"),
					Email:           stringify(contact["email"]),
					MatchConfidence: 1.0,
					Candidates:      []map[string]any{contact},
				}
			}
		}
	}

	if name != "" {
		if resolved, ok := matchByName(contacts, name); ok {
			return resolved
		}
	}

	// 无可用提示或没有任何得分：回显提示并给出前几个联系人供人工消歧。
	fallback := contacts
	if len(fallback) > maxCandidates {
		fallback = fallback[:maxCandidates]
	}
	if fallback == nil {
		fallback = []map[string]any{}
	}
	return ResolvedPayee{
		Name:            name,
		Email:           email,
		MatchConfidence: 0.0,
		Candidates:      fallback,
	}
}

type scoredContact struct {
	score   float64
	contact map[string]any
}

// matchByName 按固定的三档评分匹配名称：
// 归一化后相等 0.95，一方是另一方的子串 0.8，提示中任一词出现在
// 联系人名称里 0.6。并列时保留输入顺序靠前者。
func matchByName(contacts []map[string]any, hint string) (ResolvedPayee, bool) {
	needle := normalizeText(hint)
	if needle == "" {
		return ResolvedPayee{}, false
	}

	scored := make([]scoredContact, 0, len(contacts))
	for _, contact := range contacts {
		contactName := normalizeText(fieldString(contact, "name", "displayName"))
		if contactName == "" {
			continue
		}
		score := 0.0
		switch {
		case contactName == needle:
			score = 0.95
		case strings.Contains(contactName, needle) || strings.Contains(needle, contactName):
			score = 0.8
		case anyTokenIn(needle, contactName):
			score = 0.6
		}
		if score > 0 {
			scored = append(scored, scoredContact{score: score, contact: contact})
		}
	}
	if len(scored) == 0 {
		return ResolvedPayee{}, false
	}

	// 稳定排序保证同分时按输入顺序取胜。
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	candidates := make([]map[string]any, 0, maxCandidates)
	for _, sc := range scored {
		if len(candidates) == maxCandidates {
			break
		}
		candidates = append(candidates, sc.contact)
	}

	top := scored[0]
	return ResolvedPayee{
		ContactID:       fieldString(top.contact, "id", "contactId"),
		Name:            fieldString(top.contact, "name", "displayName"),
		Email:           stringify(top.contact["email"]),
		MatchConfidence: top.score,
		Candidates:      candidates,
	}, true
}

func anyTokenIn(needle, haystack string) bool {
	for _, token := range strings.Fields(needle) {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}
