package models

// Balances holds the usage balances embedded in the user snapshot.
type Balances struct {
	Credits      int64 `json:"credits"`
	BonusCredits int64 `json:"bonus_credits"`
}

// User is the minimal user snapshot carried in token responses and
// persisted by the client session. The full user record lives in the
// host application; this subsystem only relays it.
type User struct {
	ID                 string   `json:"id"`
	Email              string   `json:"email"`
	SubscriptionTier   string   `json:"subscription_tier"`
	SubscriptionStatus string   `json:"subscription_status"`
	Balances           Balances `json:"balances"`
}
