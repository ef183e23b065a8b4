package models

// Состояния контура балансировки (одна итерация проходит их по порядку)
const (
	StateIdle                = "IDLE"
	StateClosingStaleOrders  = "CLOSING_STALE_ORDERS"
	StateRefreshingPositions = "REFRESHING_POSITIONS"
	StateAggregating         = "AGGREGATING"
	StateRebalancing         = "REBALANCING"
	StateAuditing            = "AUDITING"
	StateSleeping            = "SLEEPING"
	StateStopped             = "STOPPED"
)
