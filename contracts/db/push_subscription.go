package db

// PushSubscription 浏览器注册的推送端点，(user_id, endpoint) 唯一
type PushSubscription struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Endpoint  string `json:"endpoint"`
	KeyP256dh string `json:"key_p256dh"`
	KeyAuth   string `json:"key_auth"`
	// 0 表示无过期提示
	ExpirationTime int64 `json:"expiration_time"`
}
