package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrSlotTaken means another booking already holds the court at that time.
	ErrSlotTaken = errors.New("court already booked for this time")
)
