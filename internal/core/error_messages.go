package core

// error_messages.go maps technical errors to user-facing messages with codes
// that users can quote to support.
//
// # Error Codes Reference
//
// # Rate Errors (RATE001-RATE099)
//
//	RATE001 - No matching rate for the route and weight
//	          Sentinel: rates.ErrNoMatch
//	RATE002 - No rate data loaded
//	          Sentinel: ErrNoData
//	RATE003 - Invalid query (blank route, bad weight)
//	          Sentinel: ErrInvalidQuery
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large                   Sentinel: ErrFileTooLarge
//	FILE002 - Not a readable spreadsheet       Sentinel: sheet.ErrInvalidWorkbook, sheet.ErrNoSheets
//	FILE004 - No file selected                 Sentinel: ErrNoFile
//	FILE005 - File has no data rows            Sentinel: rates.ErrEmptyInput
//
// # Cache Errors (CACHE001-CACHE099)
//
//	CACHE001 - Data too large to cache         Sentinel: store.ErrSnapshotTooLarge
//	CACHE002 - Cached data unreadable          Sentinel: store.ErrCorruptSnapshot
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - System busy                       Sentinel: ErrTooManyUploads
//	UPL004 - Request cancelled                 Sentinel: context.Canceled
//	UPL005 - Request timed out                 Sentinel: context.DeadlineExceeded
//
// # Database Errors (DB001-DB099)
//
//	DB004 - Connection refused                 Pattern: "connection refused"
//	DB005 - Connection reset                   Pattern: "connection reset"
//	DB006 - Timeout                            Pattern: "timeout"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Too many requests                 Pattern: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.
//
// # Matching
//
// Sentinels are checked first with errors.Is, so wrapped errors map
// correctly. Remaining errors are matched case-insensitively against
// patterns with strings.Contains; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/freight/internal/core/rates"
	"github.com/JonMunkholm/freight/internal/sheet"
	"github.com/JonMunkholm/freight/internal/store"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgNoMatch = UserMessage{
		Message: "未找到匹配的运费规则",
		Action:  "请检查始发地、目的地和重量，或上传包含该线路的运费表",
		Code:    "RATE001",
	}
	msgNoData = UserMessage{
		Message: "当前无运费数据",
		Action:  "请先上传 Excel 运费表",
		Code:    "RATE002",
	}
	msgInvalidQuery = UserMessage{
		Message: "查询条件不完整",
		Action:  "请选择始发地和目的地，并输入有效重量",
		Code:    "RATE003",
	}
	msgFileTooLarge = UserMessage{
		Message: "文件超过大小限制",
		Action:  "请拆分文件后分别上传",
		Code:    "FILE001",
	}
	msgInvalidWorkbook = UserMessage{
		Message: "解析 Excel 文件失败",
		Action:  "请上传 .xlsx 或 .csv 文件，并确认第一行为表头",
		Code:    "FILE002",
	}
	msgNoFile = UserMessage{
		Message: "未选择文件",
		Action:  "请选择要上传的 Excel 文件",
		Code:    "FILE004",
	}
	msgEmptyFile = UserMessage{
		Message: "Excel 文件为空",
		Action:  "请上传包含数据行的运费表",
		Code:    "FILE005",
	}
	msgTooLargeToCache = UserMessage{
		Message: "数据量过大，无法保存到缓存",
		Action:  "数据已加载，但重启后需要重新上传",
		Code:    "CACHE001",
	}
	msgCorruptCache = UserMessage{
		Message: "缓存数据已损坏",
		Action:  "请重新上传运费表",
		Code:    "CACHE002",
	}
	msgBusy = UserMessage{
		Message: "上传任务过多",
		Action:  "请稍后重试",
		Code:    "UPL002",
	}
	msgCancelled = UserMessage{
		Message: "请求已取消",
		Action:  "请重试",
		Code:    "UPL004",
	}
	msgTimeout = UserMessage{
		Message: "请求超时",
		Action:  "请上传较小的文件或稍后重试",
		Code:    "UPL005",
	}
)

// errorSentinels maps wrapped sentinel errors to user messages.
var errorSentinels = []struct {
	err error
	msg UserMessage
}{
	{rates.ErrNoMatch, msgNoMatch},
	{ErrNoData, msgNoData},
	{ErrInvalidQuery, msgInvalidQuery},
	{ErrFileTooLarge, msgFileTooLarge},
	{sheet.ErrNoSheets, msgInvalidWorkbook},
	{sheet.ErrInvalidWorkbook, msgInvalidWorkbook},
	{ErrNoFile, msgNoFile},
	{rates.ErrEmptyInput, msgEmptyFile},
	{store.ErrSnapshotTooLarge, msgTooLargeToCache},
	{store.ErrCorruptSnapshot, msgCorruptCache},
	{ErrTooManyUploads, msgBusy},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches errors from drivers and the network that carry no
// sentinel. Specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "无法连接数据库",
			Action:  "请稍后重试",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "数据库连接中断",
			Action:  "请重试",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "操作超时",
			Action:  "请稍后重试",
			Code:    "DB006",
		},
	},
	{
		pattern: "http: request body too large",
		msg:     msgFileTooLarge,
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "请求过于频繁",
			Action:  "请稍候再试",
			Code:    "REQ001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "发生未知错误",
	Action:  "请重试或联系管理员",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message.
// Returns the zero UserMessage for a nil error and ERR000 when nothing matches.
//
// Example:
//
//	_, err := svc.Quote(ctx, q)
//	msg := MapError(err)
//	// errors.Is(err, rates.ErrNoMatch) => msg.Code == "RATE001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range errorSentinels {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
