package provider

import "time"

// RetryPolicy 重试策略
// 独立成对象便于单测，不和网络代码耦合
type RetryPolicy struct {
	// ExtraAttempts 各失败分类在首次调用之外允许的额外尝试次数
	ExtraAttempts map[FailureKind]int
	BaseDelay     time.Duration // 首次退避时长
	MaxDelay      time.Duration // 退避上限
}

// DefaultRetryPolicy 默认策略：
// 超时/限流额外重试两次，后端错误/空响应重试一次，鉴权失败不重试
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ExtraAttempts: map[FailureKind]int{
			FailureTimeout:       2,
			FailureRateLimited:   2,
			FailureBackendError:  1,
			FailureEmptyResponse: 1,
			FailureAuth:          0,
		},
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
	}
}

// Retryable 判断某次失败后是否还允许重试
// attempt 为已完成的尝试次数（从 1 开始计）
func (p RetryPolicy) Retryable(kind FailureKind, attempt int) bool {
	return attempt <= p.ExtraAttempts[kind]
}

// Backoff 第 attempt 次重试前的等待时长，指数退避并封顶
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
