package models

const (
	// DefaultSessionTTL is how long a draft is kept, in seconds.
	DefaultSessionTTL = 24 * 60 * 60

	// DefaultConfirmLockTTL bounds how long a session lock is held, in seconds.
	DefaultConfirmLockTTL = 30

	DefaultAdvanceWindowDays = 4
	DefaultMaxGuests         = 3
	DefaultVATBasisPoints    = 1000

	DefaultOpenTime    = "08:00"
	DefaultCloseTime   = "22:00"
	DefaultSlotMinutes = 30

	EventWorkerQueueSize = 256
)
