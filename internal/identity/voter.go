package identity

// anonymousKeyPrefix 与设备指纹拼接成匿名投票的去重键
const anonymousKeyPrefix = "anon:"

// Kind 区分投票者身份的两种形态
type Kind int

const (
	KindAnonymous Kind = iota
	KindAuthenticated
)

// Voter 是投票者身份的标签联合：Authenticated{UserID} | Anonymous{Key}。
// 资格判定和账本都只通过它取去重键，避免在各处对 nil 的用户ID做分支。
type Voter struct {
	kind    Kind
	userID  string
	anonKey string
}

// Authenticated 构造一个已登录投票者
func Authenticated(userID string) Voter {
	return Voter{kind: KindAuthenticated, userID: userID}
}

// Anonymous 构造一个以设备指纹为键的匿名投票者
func Anonymous(fingerprint string) Voter {
	return Voter{kind: KindAnonymous, anonKey: AnonymousKey(fingerprint)}
}

// ForRequest 根据可选的登录用户ID和设备信号选择身份形态
func ForRequest(userID string, signals Signals) Voter {
	if userID != "" {
		return Authenticated(userID)
	}
	return Anonymous(signals.Fingerprint)
}

// AnonymousKey 返回 "anon:" + 指纹
func AnonymousKey(fingerprint string) string {
	return anonymousKeyPrefix + fingerprint
}

func (v Voter) Kind() Kind { return v.kind }

func (v Voter) IsAuthenticated() bool { return v.kind == KindAuthenticated }

// UserID 仅对已登录投票者有意义
func (v Voter) UserID() string { return v.userID }

// AnonymousKey 仅对匿名投票者有意义
func (v Voter) AnonymousKey() string { return v.anonKey }

// UserIDPtr 和 AnonymousKeyPtr 给持久化层使用，另一种形态对应的列写 NULL
func (v Voter) UserIDPtr() *string {
	if v.kind != KindAuthenticated {
		return nil
	}
	id := v.userID
	return &id
}

func (v Voter) AnonymousKeyPtr() *string {
	if v.kind != KindAnonymous {
		return nil
	}
	key := v.anonKey
	return &key
}
