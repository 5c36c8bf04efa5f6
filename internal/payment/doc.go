// Package payment 实现付款草稿工作流的核心逻辑：
// 指令解析、收款人匹配、出资方式选择、草稿组装，以及提交与排期前的校验门。
//
// 本包不做任何持久化，也不自带重试；所有外部能力（Veem API、
// 历史记录、排期存储）均以接口注入，便于替换与隔离测试。
package payment
