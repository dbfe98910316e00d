package service

import "errors"

var (
	ErrLocationUnknown   = errors.New("device location unknown")
	ErrOutsideZone       = errors.New("outside school zone")
	ErrInvalidZone       = errors.New("invalid school zone")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStudentNotFound   = errors.New("student not found")
	ErrInvalidStatus     = errors.New("invalid pickup status")
	ErrInvalidRequest    = errors.New("student id and parent id are required")
)
