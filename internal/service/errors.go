package service

import (
	"errors"
	"fmt"
)

// 校验类错误：同步拒绝，不自动重试
var (
	ErrFollowSelf        = errors.New("cannot follow self")
	ErrUserNotFound      = errors.New("user not found")
	ErrTweetNotFound     = errors.New("tweet not found")
	ErrNotTweetOwner     = errors.New("only the author can delete a tweet")
	ErrInvalidCursor     = errors.New("invalid cursor")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrInvalidCredential = errors.New("invalid username or password")
)

// 致命错误：扇出时作者不存在，说明调用方在推文提交前/未提交就触发了扇出
var ErrAuthorNotFound = errors.New("fanout author does not exist")

// ErrCacheInvalidation 变更已提交但缓存失效失败；操作幂等，调用方重试即可
var ErrCacheInvalidation = errors.New("cache invalidation failed")

// FanoutState 单次扇出的状态机
// PENDING -> FOLLOWERS_FETCHED -> BATCH_SUBMITTED -> COMPLETED | FAILED
type FanoutState int

const (
	FanoutPending FanoutState = iota
	FanoutFollowersFetched
	FanoutBatchSubmitted
	FanoutCompleted
	FanoutFailed
)

func (s FanoutState) String() string {
	switch s {
	case FanoutPending:
		return "PENDING"
	case FanoutFollowersFetched:
		return "FOLLOWERS_FETCHED"
	case FanoutBatchSubmitted:
		return "BATCH_SUBMITTED"
	case FanoutCompleted:
		return "COMPLETED"
	case FanoutFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("FanoutState(%d)", int(s))
	}
}

// FanoutError 扇出失败；State 为失败时所处阶段
type FanoutError struct {
	TweetID   string
	State     FanoutState
	Retryable bool
	Err       error
}

func (e *FanoutError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("fanout tweet %s failed at %s (%s): %v", e.TweetID, e.State, kind, e.Err)
}

func (e *FanoutError) Unwrap() error { return e.Err }

// IsRetryable 判断错误是否可安全重试
func IsRetryable(err error) bool {
	var fe *FanoutError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return errors.Is(err, ErrCacheInvalidation)
}
