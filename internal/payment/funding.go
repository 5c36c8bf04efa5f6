package payment

// fundingWrapKeys 是出资方式列表可能的包装键名。
var fundingWrapKeys = []string{"fundingMethods", "data", "items"}

// pickFundingMethodID 选择出资方式：偏好 ID 在列表中则用偏好，否则取
// 输入顺序里第一个有 ID 的记录。选不出来返回空串，由调用方记为缺失
// 字段而不是错误。
func pickFundingMethodID(methodsPayload any, preferredID string) string {
	methods := unwrapCollection(methodsPayload, fundingWrapKeys...)

	if preferredID != "" {
		for _, method := range methods {
			if stringify(method["id"]) == preferredID {
				return preferredID
			}
		}
	}

	for _, method := range methods {
		if id := stringify(method["id"]); id != "" {
			return id
		}
	}
	return ""
}
