package audithook

// Action constants for audit events.
const (
	// Charge actions
	ActionChargeRecorded    = "charge.recorded"
	ActionChargeWriteFailed = "charge.write_failed"

	// Reservation actions
	ActionReservationLeaked = "reservation.leaked"

	// Voucher actions
	ActionVoucherCreated = "voucher.created"
)

// Resource constants for audit events.
const (
	ResourceCharge      = "charge"
	ResourceReservation = "reservation"
	ResourceVoucher     = "voucher"
)

// Category constants for audit events.
const (
	CategoryBilling = "billing"
	CategoryPayment = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
