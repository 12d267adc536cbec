// Package result 定义所有受保护操作统一返回的带标签结果。
package result

// Kind 区分失败的类别，调用方据此选择提示文案。
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation" // 缺少标识、对自己操作、空内容
	KindBlocked    Kind = "blocked"    // 任一方向存在拉黑
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindTransient  Kind = "transient" // 存储或网络暂时失败
	KindUnexpected Kind = "unexpected"
)

// Result is either {OK: true, Data} or {OK: false, Kind, Message}.
// A uniqueness conflict is a success with Duplicate set and Info describing it.
type Result[T any] struct {
	OK        bool   `json:"ok"`
	Data      T      `json:"data,omitempty"`
	Info      string `json:"info,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Kind      Kind   `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Ok wraps a successful value.
func Ok[T any](data T) Result[T] {
	return Result[T]{OK: true, Data: data}
}

// Existing reports a benign uniqueness conflict as success.
func Existing[T any](data T, info string) Result[T] {
	return Result[T]{OK: true, Data: data, Duplicate: true, Info: info}
}

// Fail builds a typed failure.
func Fail[T any](kind Kind, message string) Result[T] {
	return Result[T]{Kind: kind, Message: message}
}

// Cast carries a failure across result types. Cast on a success drops the data.
func Cast[U, T any](r Result[T]) Result[U] {
	return Result[U]{OK: r.OK, Info: r.Info, Duplicate: r.Duplicate, Kind: r.Kind, Message: r.Message}
}

// Is reports whether r failed with kind k.
func (r Result[T]) Is(k Kind) bool {
	return !r.OK && r.Kind == k
}

// WithInfo attaches an informational message to a success.
func (r Result[T]) WithInfo(info string) Result[T] {
	r.Info = info
	return r
}
