package jobs

import "errors"

var (
	// ErrQueueFull はキュー済み・実行中のジョブが上限に達している場合に返される
	ErrQueueFull = errors.New("job queue is full")
	// ErrNotFound はジョブIDがストアにもファイルにも存在しない場合に返される
	ErrNotFound = errors.New("job not found")
	// ErrMissingOutput は切り出しが成功を返したのに成果物が無い場合に返される
	ErrMissingOutput = errors.New("output file missing after trim")
)

// ValidationError は入力不正。メッセージはそのまま利用者に返す
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// IsValidation はerrがValidationErrorならtrue
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
