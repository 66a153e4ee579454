package poll

import "errors"

var (
	ErrNotFound        = errors.New("投票不存在")
	ErrNotCreator      = errors.New("只有投票创建者可以执行此操作")
	ErrQuestionMissing = errors.New("投票问题不能为空")
	ErrQuestionTooLong = errors.New("投票问题过长")
	ErrOptionCount     = errors.New("投票选项数量必须在2到10之间")
	ErrOptionInvalid   = errors.New("投票选项不能为空且不能过长")
)

// IsValidationError 判断错误是否来自创建参数校验
func IsValidationError(err error) bool {
	return errors.Is(err, ErrQuestionMissing) ||
		errors.Is(err, ErrQuestionTooLong) ||
		errors.Is(err, ErrOptionCount) ||
		errors.Is(err, ErrOptionInvalid)
}
