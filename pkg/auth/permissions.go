package auth

// Permission strings checked by the HTTP layer.
const (
	PermissionOrderManage      = "order:manage"
	PermissionPaymentRefund    = "payment:refund"
	PermissionReturnReview     = "return:review"
	PermissionWithdrawReview   = "withdraw:review"
	PermissionWithdrawProcess  = "withdraw:process"
	PermissionNotificationSend = "notification:send"
	PermissionShopManage       = "shop:manage"
)
