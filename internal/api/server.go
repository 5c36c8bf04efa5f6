// Package api 将付款工作流以 MCP 风格的工具端点暴露出来。
// 工具层面的失败一律用 ok:false 的信封返回（HTTP 200），
// 只有传输层问题才使用 HTTP 错误码。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	xerrors "VeemFlow-MCP/internal/errors"
	"VeemFlow-MCP/internal/invoice"
	"VeemFlow-MCP/internal/observability/metrics"
	"VeemFlow-MCP/internal/payment"
	"VeemFlow-MCP/pkg/logger"
)

const (
	toolInvoiceProcess  = "invoice_process"
	toolPaymentPrepare  = "payment_prepare"
	toolPaymentSubmit   = "payment_submit"
	toolPaymentSchedule = "payment_schedule"
)

// Server 负责暴露工具端点。
type Server struct {
	addr      string
	payments  *payment.Service
	extractor invoice.Extractor
	log       *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, payments *payment.Service, extractor invoice.Extractor) *Server {
	return &Server{
		addr:      addr,
		payments:  payments,
		extractor: extractor,
		log:       logger.Named("api"),
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回路由好的 HTTP 处理器，便于测试复用。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/v1/tools/"+toolInvoiceProcess, s.handleInvoiceProcess)
	mux.HandleFunc("/mcp/v1/tools/"+toolPaymentPrepare, s.handlePaymentPrepare)
	mux.HandleFunc("/mcp/v1/tools/"+toolPaymentSubmit, s.handlePaymentSubmit)
	mux.HandleFunc("/mcp/v1/tools/"+toolPaymentSchedule, s.handlePaymentSchedule)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

type invoiceProcessRequest struct {
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	FileBase64 string `json:"file_base64"`
	RequestID  string `json:"request_id"`
}

func (s *Server) handleInvoiceProcess(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req invoiceProcessRequest
	if !s.decodeRequest(w, r, toolInvoiceProcess, &req, started) {
		return
	}
	requestID := ensureRequestID(req.RequestID)

	if s.extractor == nil {
		s.respond(w, fail(toolInvoiceProcess, requestID,
			xerrors.New(xerrors.CodeInitializationFailure, "票据抽取器未初始化")), started)
		return
	}
	extracted, err := s.extractor.Extract(r.Context(), invoice.DocumentInput{
		Filename:   req.Filename,
		MimeType:   req.MimeType,
		FileBase64: req.FileBase64,
	})
	if err != nil {
		s.logToolFailure(toolInvoiceProcess, requestID, err)
		s.respond(w, fail(toolInvoiceProcess, requestID, err), started)
		return
	}
	s.respond(w, ok(toolInvoiceProcess, requestID, extracted), started)
}

type paymentPrepareRequest struct {
	Command      string                    `json:"command"`
	Invoice      *invoice.ExtractedInvoice `json:"invoice"`
	CurrencyHint string                    `json:"currency_hint"`
	RequestID    string                    `json:"request_id"`
}

func (s *Server) handlePaymentPrepare(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req paymentPrepareRequest
	if !s.decodeRequest(w, r, toolPaymentPrepare, &req, started) {
		return
	}
	requestID := ensureRequestID(req.RequestID)

	draft, err := s.payments.Prepare(r.Context(), payment.PrepareParams{
		Command:      req.Command,
		Invoice:      req.Invoice,
		CurrencyHint: req.CurrencyHint,
	})
	if err != nil {
		s.logToolFailure(toolPaymentPrepare, requestID, err)
		s.respond(w, fail(toolPaymentPrepare, requestID, err), started)
		return
	}
	s.respond(w, ok(toolPaymentPrepare, requestID, draft), started)
}

type paymentSubmitRequest struct {
	Draft     *payment.PaymentDraft `json:"draft"`
	RequestID string                `json:"request_id"`
}

func (s *Server) handlePaymentSubmit(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req paymentSubmitRequest
	if !s.decodeRequest(w, r, toolPaymentSubmit, &req, started) {
		return
	}
	requestID := ensureRequestID(req.RequestID)

	result, err := s.payments.Submit(r.Context(), req.Draft)
	if err != nil {
		s.logToolFailure(toolPaymentSubmit, requestID, err)
		s.respond(w, fail(toolPaymentSubmit, requestID, err), started)
		return
	}
	s.respond(w, ok(toolPaymentSubmit, requestID, result), started)
}

type paymentScheduleRequest struct {
	Draft     *payment.PaymentDraft `json:"draft"`
	RunAtUTC  string                `json:"run_at_utc"`
	RequestID string                `json:"request_id"`
}

func (s *Server) handlePaymentSchedule(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req paymentScheduleRequest
	if !s.decodeRequest(w, r, toolPaymentSchedule, &req, started) {
		return
	}
	requestID := ensureRequestID(req.RequestID)

	result, err := s.payments.Schedule(r.Context(), req.Draft, req.RunAtUTC)
	if err != nil {
		s.logToolFailure(toolPaymentSchedule, requestID, err)
		s.respond(w, fail(toolPaymentSchedule, requestID, err), started)
		return
	}
	s.respond(w, ok(toolPaymentSchedule, requestID, result), started)
}

// decodeRequest 解析请求体。方法或编码不合法属于传输层问题，
// 直接用 HTTP 状态码回应。
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, tool string, into any, started time.Time) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.respond(w, fail(tool, ensureRequestID(""),
			xerrors.Wrap(xerrors.CodeBadRequest, err, "请求体解析失败")), started)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, envelope Envelope, started time.Time) {
	outcome := "ok"
	if !envelope.OK {
		outcome = string(xerrors.CodeUnhandled)
		if envelope.Error != nil {
			outcome = envelope.Error.Code
		}
	}
	metrics.ObserveToolCall(envelope.Meta.Tool, outcome, time.Since(started))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		s.log.Error("写入响应失败", slog.Any("error", err))
	}
}

func (s *Server) logToolFailure(tool, requestID string, err error) {
	s.log.Warn("工具调用失败",
		slog.String("tool", tool),
		slog.String("request_id", requestID),
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.Any("error", err),
	)
}
