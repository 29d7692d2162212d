package domain

// Assets traded on the platform. The market is a single pair: one currency
// balance against one fixed-supply token.
const (
	AssetCurrency = "CURRENCY"
	AssetToken    = "TOKEN"
)

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Price types.
const (
	PriceTypeMarket = "MARKET"
	PriceTypeLimit  = "LIMIT"
)

// Order statuses.
const (
	OrderStatusPending  = "PENDING"
	OrderStatusPartial  = "PARTIAL"
	OrderStatusFilled   = "FILLED"
	OrderStatusCanceled = "CANCELED"
	OrderStatusExpired  = "EXPIRED"
)

// Transaction types. Each type carries an independently configurable fee
// rate (see fee_configs).
const (
	TxTypeBuy      = "buy"
	TxTypeSell     = "sell"
	TxTypeTransfer = "transfer"
	TxTypeWithdraw = "withdraw"
	TxTypeDeposit  = "deposit"
	TxTypeReferral = "referral"
)

// Roles supplied by the identity provider via JWT claims. The core trusts
// this identity and performs no authentication of its own.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
