// game/ack.go
package game

// Acknowledgement status codes carried back to the requesting client.
const (
	StatusOK            = 200
	StatusBadRequest    = 400
	StatusForbidden     = 403
	StatusNotFound      = 404
	StatusInternalError = 500
)
