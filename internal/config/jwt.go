package config

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"liveline/internal/models"
)

// TicketClaims prove possession of a ticket. They are not an account login.
type TicketClaims struct {
	QueueID      string `json:"queue_id"`
	VisitorID    string `json:"visitor_id"`
	TicketNumber int64  `json:"ticket_number"`
	jwt.RegisteredClaims
}

type TicketSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTicketSigner(secret string, ttl time.Duration) *TicketSigner {
	return &TicketSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *TicketSigner) GenerateToken(v models.Visitor) (string, error) {
	now := s.now()
	claims := TicketClaims{
		QueueID:      v.QueueID,
		VisitorID:    v.ID,
		TicketNumber: v.TicketNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   v.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TicketSigner) ValidateToken(tokenString string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.VisitorID == "" || claims.QueueID == "" {
		return nil, errors.New("ticket token is missing visitor or queue id")
	}
	return claims, nil
}
