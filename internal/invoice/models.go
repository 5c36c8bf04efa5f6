// Package invoice 定义票据抽取的数据模型与抽取器接口。
// 真正的文档理解由外部大模型完成，本包只负责模型与边界。
package invoice

import "encoding/json"

// PayeeHint 是票据中抽取出来的收款人线索。
type PayeeHint struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Money 是票据中的金额信息。Currency 为 ISO-4217 代码。
type Money struct {
	Amount   *float64 `json:"amount,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

// ExtractedInvoice 是一次票据抽取的归一化结果。
// Processable 为 false 时 Reason 说明原因，草稿准备会据此直接失败。
type ExtractedInvoice struct {
	Processable bool   `json:"processable"`
	Reason      string `json:"reason,omitempty"`

	Payee PayeeHint `json:"payee"`
	Money Money     `json:"money"`

	Purpose       string `json:"purpose,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	InvoiceDate   string `json:"invoice_date,omitempty"`
	DueDate       string `json:"due_date,omitempty"`

	Confidence map[string]float64 `json:"confidence,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`

	Raw map[string]any `json:"raw,omitempty"`
}

// UnmarshalJSON 在 processable 缺省时默认为可处理，与抽取器的
// 输出约定保持一致。
func (e *ExtractedInvoice) UnmarshalJSON(data []byte) error {
	type alias ExtractedInvoice
	aux := struct {
		Processable *bool `json:"processable"`
		*alias
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Processable = aux.Processable == nil || *aux.Processable
	return nil
}

// DocumentInput 是待抽取的原始文档。
type DocumentInput struct {
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	FileBase64 string `json:"file_base64"`
}
