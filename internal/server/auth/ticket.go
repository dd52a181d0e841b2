package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"udpforum/internal/common"
)

// Transfer directions carried in a ticket.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// TicketClaims binds a stream connection to one pending transfer. The
// ticket travels to the client in the UPD/DWN reply and comes back as the
// first line of the stream connection, so the coordinator can verify that
// the connection belongs to the exchange it negotiated.
type TicketClaims struct {
	jwt.RegisteredClaims
	TransferID string `json:"tid"`
	Direction  string `json:"dir"`
	Thread     string `json:"thr"`
	Filename   string `json:"fn"`
}

// IssueTicket signs a one-shot transfer ticket valid for ttl.
func IssueTicket(transferID, direction, thread, filename string, secret []byte, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		TransferID: transferID,
		Direction:  direction,
		Thread:     thread,
		Filename:   filename,
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	return signed, nil
}

// VerifyTicket parses and validates a ticket string.
func VerifyTicket(ticket string, secret []byte) (*TicketClaims, error) {
	claims := &TicketClaims{}
	token, err := jwt.ParseWithClaims(ticket, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
