package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 引用的职位/候选人/简历不存在
	ErrNotFound = errors.New("资源不存在")
	// ErrProvider embedding服务调用失败或超时
	ErrProvider = errors.New("embedding服务调用失败")
	// ErrIndexUnavailable 向量索引后端不可用
	ErrIndexUnavailable = errors.New("向量索引不可用")
	// ErrInvalidInput 请求参数不合法
	ErrInvalidInput = errors.New("输入参数无效")
	// ErrNotEligible 候选人不满足职位的必备技能要求
	ErrNotEligible = errors.New("候选人不满足必备技能要求")
)

// NotFoundError 带实体类型和ID的不存在错误
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s不存在: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError 创建不存在错误
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ProviderError embedding服务错误，StatusCode为0表示未拿到HTTP响应
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("embedding服务%s失败(状态码 %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding服务%s失败: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

// NewProviderError 包装embedding服务错误；已经是ProviderError的直接返回
func NewProviderError(op string, statusCode int, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, StatusCode: statusCode, Err: err}
}

// Permanent 请求本身被拒绝(4xx，限流除外)，重试不会成功
func (e *ProviderError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429
}

// IsPermanentProviderError err 链中是否有不可重试的embedding服务错误
func IsPermanentProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent()
}

// IneligibleError 申请被资格校验拦截，携带校验详情
type IneligibleError struct {
	Result EligibilityResult
}

func (e *IneligibleError) Error() string {
	return e.Result.Explanation
}

func (e *IneligibleError) Unwrap() error {
	return ErrNotEligible
}
