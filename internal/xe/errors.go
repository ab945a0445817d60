package xe

import "github.com/go-orz/orz"

var (
	ErrInvalidParams    = orz.NewError(10400, "参数无效")
	ErrInvalidToken     = orz.NewError(10403, "令牌无效")
	ErrPermissionDenied = orz.NewError(10401, "您没有权限查看/修改/删除此数据")

	ErrAccountAlreadyUsed = orz.NewError(10000, "账户已被使用")
	ErrIncorrectPassword  = orz.NewError(10001, "账户或密码错误")
	ErrUserDisabled       = orz.NewError(10002, "用户已被禁用")

	ErrInsufficientCredits   = orz.NewError(10100, "积分不足")
	ErrUnknownModels         = orz.NewError(10101, "包含未知的模型")
	ErrTooManyModels         = orz.NewError(10102, "最多选择5个模型")
	ErrNoModelsSelected      = orz.NewError(10103, "至少选择1个模型")
	ErrSessionNotFound       = orz.NewError(10104, "会话不存在")
	ErrSessionNotProcessable = orz.NewError(10105, "会话当前状态不可处理")
	ErrInvalidTaskMessage    = orz.NewError(10106, "任务消息缺少必填字段")
	ErrRecoveryNotEligible   = orz.NewError(10107, "会话未满足恢复条件")
)
